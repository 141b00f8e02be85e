package ir

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

func (s *Src) String() string {
	if s == nil {
		return "-"
	}

	switch s.Kind {
	case KindImm:
		return fmt.Sprintf("0x%x:%s", s.Imm, s.Type)
	case KindAddrOf:
		return fmt.Sprintf("&%s+%d", s.Base.Name, s.AddrImm)
	case KindNull:
		return "null"
	}

	if s.Access == AccessIndirect {
		return fmt.Sprintf("%sr[%s.%d,%d]%s:%s",
			s.Mod, s.Base.Name, s.SubRegOff, s.AddrImm, s.Region, s.Type)
	}

	return fmt.Sprintf("%s%s(%d,%d)%s:%s",
		s.Mod, s.Base.Name, s.RegOff, s.SubRegOff, s.Region, s.Type)
}

func (d *Dst) String() string {
	if d == nil {
		return "-"
	}

	if d.Kind == KindNull {
		return fmt.Sprintf("null<%d>:%s", d.H, d.Type)
	}

	if d.Access == AccessIndirect {
		return fmt.Sprintf("r[%s.%d,%d]<%d>:%s", d.Base.Name, d.SubRegOff, d.AddrImm, d.H, d.Type)
	}

	return fmt.Sprintf("%s(%d,%d)<%d>:%s", d.Base.Name, d.RegOff, d.SubRegOff, d.H, d.Type)
}

func (p *Predicate) String() string {
	inv := ""
	if p.Inverse {
		inv = "~"
	}

	ctrl := ""
	switch p.Control {
	case PredAny:
		ctrl = ".any"
	case PredAll:
		ctrl = ".all"
	}

	return fmt.Sprintf("(%s%s.%d%s)", inv, p.Flag.Name, p.SubReg, ctrl)
}

func (i *Inst) String() string {
	var sb strings.Builder

	if i.Pred != nil {
		sb.WriteString(i.Pred.String())
		sb.WriteString(" ")
	}

	sb.WriteString(i.Op.String())
	if i.Sat {
		sb.WriteString(".sat")
	}

	if i.CondMod != nil {
		fmt.Fprintf(&sb, ".%s.%s.%d", i.CondMod.Kind, i.CondMod.Flag.Name, i.CondMod.SubReg)
	}

	fmt.Fprintf(&sb, " (%d|M%d)", i.ExecSize, i.MaskOffset)

	if i.Dst != nil {
		sb.WriteString(" ")
		sb.WriteString(i.Dst.String())
	}

	for n := 0; n < i.NumSrcs(); n++ {
		sb.WriteString(" ")
		sb.WriteString(i.Srcs[n].String())
	}

	if i.NoMask {
		sb.WriteString(" {NoMask}")
	}

	return sb.String()
}

// DumpBlock renders the instructions of b as a table.
func DumpBlock(f *Func, b *Block) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("%s: %s (all lanes active: %v)", f.Name, b.Name, b.AllLanesActive))
	t.AppendHeader(table.Row{"ID", "Instruction", "Defs", "Uses"})

	for _, inst := range f.InstsOf(b) {
		t.AppendRow(table.Row{
			inst.ID,
			inst.String(),
			edgeList(f.DU.Defs(inst.ID), true),
			edgeList(f.DU.Uses(inst.ID), false),
		})
	}

	return t.Render()
}

func edgeList(edges []Edge, defs bool) string {
	parts := make([]string, 0, len(edges))
	for _, e := range edges {
		if defs {
			parts = append(parts, fmt.Sprintf("%d:%s", e.Def, e.Pos))
		} else {
			parts = append(parts, fmt.Sprintf("%d:%s", e.Use, e.Pos))
		}
	}

	return strings.Join(parts, " ")
}
