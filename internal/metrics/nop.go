package metrics

import "labelbot/internal/domain"

// Nop discards every observation.
type Nop struct{}

func NewNop() *Nop { return &Nop{} }

func (*Nop) LabelSet(domain.Label)                  {}
func (*Nop) LabelCleared()                          {}
func (*Nop) Uploaded(int, int)                      {}
func (*Nop) Partitioned()                           {}
func (*Nop) Reset()                                 {}
func (*Nop) ObserveProgress(int, []domain.Progress) {}
