package ioutil

import "math"

func uint32frombits(f float32) uint32  { return math.Float32bits(f) }
func float32frombits(u uint32) float32 { return math.Float32frombits(u) }
func uint64frombits(f float64) uint64  { return math.Float64bits(f) }
func float64frombits(u uint64) float64 { return math.Float64frombits(u) }
