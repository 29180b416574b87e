// Package network holds the power system case: buses, branches and
// generators, together with the network matrices derived from them.
package network

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type BusType int

const (
	PQ BusType = iota + 1
	PV
	Reference
	Isolated
)

var busTypeNames = map[BusType]string{
	PQ:        "pq",
	PV:        "pv",
	Reference: "ref",
	Isolated:  "isolated",
}

func (t BusType) String() string {
	if s, ok := busTypeNames[t]; ok {
		return s
	}
	return "BusType(" + strconv.Itoa(int(t)) + ")"
}

func (t BusType) MarshalText() ([]byte, error) {
	if _, ok := busTypeNames[t]; !ok {
		return nil, errors.Wrapf(ErrBusType, "network: %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText accepts the names above or the numeric codes 1-4.
func (t *BusType) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for k, name := range busTypeNames {
		if s == name || s == strconv.Itoa(int(k)) {
			*t = k
			return nil
		}
	}
	return errors.Wrapf(ErrBusType, "network: %q", s)
}

// 母线
type Bus struct {
	Name string  `json:"name,omitempty" yaml:"name,omitempty"`
	Type BusType `json:"type" yaml:"type"`
	// 有功负荷 (MW)
	Pd float64 `json:"pd" yaml:"pd"`
	// 无功负荷 (MVAr)
	Qd float64 `json:"qd" yaml:"qd"`
	// 并联电导, MW consumed at 1 p.u.
	Gs float64 `json:"gs" yaml:"gs"`
	// 并联电纳, MVAr injected at 1 p.u.
	Bs     float64 `json:"bs" yaml:"bs"`
	BaseKV float64 `json:"base_kv,omitempty" yaml:"base_kv,omitempty"`
	// 电压幅值 (p.u.)
	Vm float64 `json:"vm" yaml:"vm"`
	// 电压相角 (degrees)
	Va   float64 `json:"va" yaml:"va"`
	VMax float64 `json:"v_max" yaml:"v_max"`
	VMin float64 `json:"v_min" yaml:"v_min"`

	// Locational prices and voltage limit multipliers ($/MWh, $/MVArh,
	// $/p.u.h), set by opf.Result.Apply.
	LamP   float64 `json:"lam_p,omitempty" yaml:"lam_p,omitempty"`
	LamQ   float64 `json:"lam_q,omitempty" yaml:"lam_q,omitempty"`
	MuVMax float64 `json:"mu_v_max,omitempty" yaml:"mu_v_max,omitempty"`
	MuVMin float64 `json:"mu_v_min,omitempty" yaml:"mu_v_min,omitempty"`
}

// 支路
type Branch struct {
	// 首端节点, 1-based bus number
	From int `json:"from" yaml:"from"`
	// 末端节点
	To int `json:"to" yaml:"to"`
	// 电阻 (p.u.)
	R float64 `json:"r" yaml:"r"`
	// 电抗 (p.u.)
	X float64 `json:"x" yaml:"x"`
	// 充电电纳 (p.u.), total
	B float64 `json:"b" yaml:"b"`
	// 额定容量 (MVA), 0 means unlimited
	RateA float64 `json:"rate_a" yaml:"rate_a"`
	// 变比, 0 means a line
	Ratio float64 `json:"ratio,omitempty" yaml:"ratio,omitempty"`
	// 移相角 (degrees)
	Shift        float64 `json:"shift,omitempty" yaml:"shift,omitempty"`
	AngMin       float64 `json:"ang_min,omitempty" yaml:"ang_min,omitempty"`
	AngMax       float64 `json:"ang_max,omitempty" yaml:"ang_max,omitempty"`
	OutOfService bool    `json:"out_of_service,omitempty" yaml:"out_of_service,omitempty"`

	// Flows (MW, MVAr) and limit multipliers, set by opf.Result.Apply.
	Pf       float64 `json:"pf,omitempty" yaml:"pf,omitempty"`
	Qf       float64 `json:"qf,omitempty" yaml:"qf,omitempty"`
	Pt       float64 `json:"pt,omitempty" yaml:"pt,omitempty"`
	Qt       float64 `json:"qt,omitempty" yaml:"qt,omitempty"`
	MuSf     float64 `json:"mu_sf,omitempty" yaml:"mu_sf,omitempty"`
	MuSt     float64 `json:"mu_st,omitempty" yaml:"mu_st,omitempty"`
	MuAngMin float64 `json:"mu_ang_min,omitempty" yaml:"mu_ang_min,omitempty"`
	MuAngMax float64 `json:"mu_ang_max,omitempty" yaml:"mu_ang_max,omitempty"`
}

// 发电机
type Generator struct {
	// 所在节点, 1-based bus number
	Bus int `json:"bus" yaml:"bus"`
	// 有功出力 (MW)
	Pg float64 `json:"pg" yaml:"pg"`
	// 无功出力 (MVAr)
	Qg   float64 `json:"qg" yaml:"qg"`
	PMax float64 `json:"p_max" yaml:"p_max"`
	PMin float64 `json:"p_min" yaml:"p_min"`
	QMax float64 `json:"q_max" yaml:"q_max"`
	QMin float64 `json:"q_min" yaml:"q_min"`
	// 电压设定值 (p.u.)
	Vg           float64 `json:"vg" yaml:"vg"`
	OutOfService bool    `json:"out_of_service,omitempty" yaml:"out_of_service,omitempty"`
	Cost         Cost    `json:"cost" yaml:"cost"`

	MuPMax float64 `json:"mu_p_max,omitempty" yaml:"mu_p_max,omitempty"`
	MuPMin float64 `json:"mu_p_min,omitempty" yaml:"mu_p_min,omitempty"`
	MuQMax float64 `json:"mu_q_max,omitempty" yaml:"mu_q_max,omitempty"`
	MuQMin float64 `json:"mu_q_min,omitempty" yaml:"mu_q_min,omitempty"`
}

// IsLoad reports whether g models a dispatchable load.
func (g *Generator) IsLoad() bool {
	return g.PMin < 0 && g.PMax == 0
}

// 电力系统
type Case struct {
	Name       string      `json:"name,omitempty" yaml:"name,omitempty"`
	BaseMVA    float64     `json:"base_mva" yaml:"base_mva"`
	Buses      []Bus       `json:"buses" yaml:"buses"`
	Branches   []Branch    `json:"branches" yaml:"branches"`
	Generators []Generator `json:"generators" yaml:"generators"`
}

// Validate checks references and values that would make the network
// matrices undefined.
func (c *Case) Validate() error {
	if c.BaseMVA <= 0 {
		return ErrBaseMVA
	}
	nb := len(c.Buses)
	if nb == 0 {
		return ErrNoBuses
	}
	for i, bus := range c.Buses {
		if _, ok := busTypeNames[bus.Type]; !ok {
			return &ElementError{Kind: "bus", Index: i, Err: ErrBusType}
		}
	}
	for l, br := range c.Branches {
		if br.From < 1 || br.From > nb || br.To < 1 || br.To > nb || br.From == br.To {
			return &ElementError{Kind: "branch", Index: l, Err: ErrBusRange}
		}
		if br.R == 0 && br.X == 0 {
			return &ElementError{Kind: "branch", Index: l, Err: ErrZeroImpedance}
		}
	}
	for i, g := range c.Generators {
		if g.Bus < 1 || g.Bus > nb {
			return &ElementError{Kind: "generator", Index: i, Err: ErrBusRange}
		}
		if err := g.Cost.validate(); err != nil {
			return &ElementError{Kind: "generator", Index: i, Err: err}
		}
	}
	return nil
}

// RefBuses returns the indices of the reference buses.
func (c *Case) RefBuses() []int {
	var refs []int
	for i, bus := range c.Buses {
		if bus.Type == Reference {
			refs = append(refs, i)
		}
	}
	return refs
}

// Clone returns a deep copy that can be solved independently of c.
func (c *Case) Clone() *Case {
	d := &Case{
		Name:       c.Name,
		BaseMVA:    c.BaseMVA,
		Buses:      append([]Bus(nil), c.Buses...),
		Branches:   append([]Branch(nil), c.Branches...),
		Generators: append([]Generator(nil), c.Generators...),
	}
	for i := range d.Generators {
		d.Generators[i].Cost = d.Generators[i].Cost.clone()
	}
	return d
}

// Mapping records the original index of every element of an internal case.
type Mapping struct {
	Buses      []int
	Branches   []int
	Generators []int
}

// Internal returns a copy of c without isolated buses, out-of-service
// branches and generators, or elements attached to isolated buses. Buses are
// renumbered consecutively.
func (c *Case) Internal() (*Case, *Mapping, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	m := &Mapping{}
	number := make([]int, len(c.Buses))
	in := &Case{Name: c.Name, BaseMVA: c.BaseMVA}
	for i, bus := range c.Buses {
		if bus.Type == Isolated {
			continue
		}
		in.Buses = append(in.Buses, bus)
		m.Buses = append(m.Buses, i)
		number[i] = len(in.Buses)
	}
	if len(in.Buses) == 0 {
		return nil, nil, ErrNoBuses
	}
	for l, br := range c.Branches {
		f, t := number[br.From-1], number[br.To-1]
		if br.OutOfService || f == 0 || t == 0 {
			continue
		}
		br.From, br.To = f, t
		in.Branches = append(in.Branches, br)
		m.Branches = append(m.Branches, l)
	}
	for i, g := range c.Generators {
		b := number[g.Bus-1]
		if g.OutOfService || b == 0 {
			continue
		}
		g.Bus = b
		g.Cost = g.Cost.clone()
		in.Generators = append(in.Generators, g)
		m.Generators = append(m.Generators, i)
	}
	return in, m, nil
}

func (c *Case) applyDefaults() {
	for i := range c.Buses {
		bus := &c.Buses[i]
		if bus.Vm == 0 {
			bus.Vm = 1
		}
		if bus.VMax == 0 && bus.VMin == 0 {
			bus.VMax, bus.VMin = 1.1, 0.9
		}
	}
	for i := range c.Generators {
		if c.Generators[i].Vg == 0 {
			c.Generators[i].Vg = 1
		}
	}
}
