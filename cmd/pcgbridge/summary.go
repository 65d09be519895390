package main

import (
	"fmt"

	"github.com/chazu/pcgbridge/pkg/translator"
)

type resultSummary struct {
	Node        string              `yaml:"node"`
	Session     string              `yaml:"session"`
	Generation  uint64              `yaml:"generation"`
	Parts       []partSummary       `yaml:"parts"`
	Collections []collectionSummary `yaml:"collections"`
	Warnings    []string            `yaml:"warnings,omitempty"`
}

type collectionSummary struct {
	ObjectPath string         `yaml:"object_path"`
	Entries    []entrySummary `yaml:"entries"`
}

type partSummary struct {
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	ObjectPath string         `yaml:"object_path"`
	Points     int            `yaml:"points"`
	Attributes []string       `yaml:"attributes,omitempty"`
	Tags       []string       `yaml:"tags,omitempty"`
	Instances  []batchSummary `yaml:"instances,omitempty"`
	Splines    int            `yaml:"splines,omitempty"`
	Triangles  int            `yaml:"triangles,omitempty"`
	Degenerate int            `yaml:"degenerate,omitempty"`
}

type batchSummary struct {
	Source string `yaml:"source"`
	Count  int    `yaml:"count"`
}

type entrySummary struct {
	Kind string   `yaml:"kind"`
	Tags []string `yaml:"tags,omitempty"`
	CRC  string   `yaml:"crc"`
}

func summarize(node string, res *translator.Result) resultSummary {
	s := resultSummary{
		Node:       node,
		Session:    res.SessionID,
		Generation: res.Generation,
	}
	for _, p := range res.Parts {
		ps := partSummary{
			Name:       p.Info.Name,
			Type:       p.Info.Type.String(),
			ObjectPath: p.ObjectPath,
			Points:     p.Points.Len(),
			Tags:       p.Tags,
		}
		for _, a := range p.Points.Schema().Attributes() {
			ps.Attributes = append(ps.Attributes, fmt.Sprintf("%s:%s:%s", a.Name, a.Type, a.Domain))
		}
		if p.Instances != nil {
			for _, b := range p.Instances.Batches {
				ps.Instances = append(ps.Instances, batchSummary{Source: b.Source, Count: len(b.Entries)})
			}
		}
		if p.Curves != nil {
			ps.Splines = len(p.Curves.Entries)
		}
		if p.Mesh != nil {
			ps.Triangles = len(p.Mesh.Mesh.Triangles)
			ps.Degenerate = p.Mesh.Degenerate
		}
		s.Parts = append(s.Parts, ps)
	}
	for _, c := range res.Collections {
		cs := collectionSummary{ObjectPath: c.ObjectPath}
		for _, e := range c.Entries {
			cs.Entries = append(cs.Entries, entrySummary{
				Kind: e.Data.Kind().String(),
				Tags: e.Tags,
				CRC:  fmt.Sprintf("%016x", e.CRC),
			})
		}
		s.Collections = append(s.Collections, cs)
	}
	for _, w := range res.Warnings {
		s.Warnings = append(s.Warnings, w.Error())
	}
	return s
}
