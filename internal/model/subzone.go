package model

import (
	"fmt"

	"github.com/twpayne/go-geom"
)

// ScoredSubzone is one subzone's pipeline output: identity, raw counts,
// demographics, the composite score and its standardized components.
// Missing names are nil; missing counts are zero.
type ScoredSubzone struct {
	Name         *string
	Subzone      string
	PlanningArea string

	Population int64
	Pop0To25   int64
	Pop25To65  int64
	Pop65Plus  int64

	Hawker int
	MRT    int
	Bus    int

	HScore float64
	HRank  int

	Dem float64
	Sup float64
	Acc float64

	Geometry geom.T
}

// Properties is the exported attribute set. Field order is the output
// contract.
type Properties struct {
	Name         *string `json:"name"`
	Subzone      string  `json:"subzone"`
	PlanningArea string  `json:"planarea"`
	Population   int64   `json:"population"`
	Pop0To25     int64   `json:"pop_0_25"`
	Pop25To65    int64   `json:"pop_25_65"`
	Pop65Plus    int64   `json:"pop_65plus"`
	Hawker       int     `json:"hawker"`
	MRT          int     `json:"mrt"`
	Bus          int     `json:"bus"`
	HScore       float64 `json:"H_score"`
	HRank        int     `json:"H_rank"`
	Dem          float64 `json:"Dem"`
	Sup          float64 `json:"Sup"`
	Acc          float64 `json:"Acc"`
}

// Properties returns the exported attribute set for s.
func (s *ScoredSubzone) Properties() Properties {
	return Properties{
		Name:         s.Name,
		Subzone:      s.Subzone,
		PlanningArea: s.PlanningArea,
		Population:   s.Population,
		Pop0To25:     s.Pop0To25,
		Pop25To65:    s.Pop25To65,
		Pop65Plus:    s.Pop65Plus,
		Hawker:       s.Hawker,
		MRT:          s.MRT,
		Bus:          s.Bus,
		HScore:       s.HScore,
		HRank:        s.HRank,
		Dem:          s.Dem,
		Sup:          s.Sup,
		Acc:          s.Acc,
	}
}

// DisplayName returns the subzone name, falling back to its code.
func (s *ScoredSubzone) DisplayName() string {
	if s.Name != nil && *s.Name != "" {
		return *s.Name
	}
	return s.Subzone
}

// RankLabel formats a rank against the number of ranked subzones, e.g. "3/332".
func RankLabel(rank, total int) string {
	return fmt.Sprintf("%d/%d", rank, total)
}
