package mir

import (
	"fmt"
	"io"
	"sort"
)

// Dump writes a human-readable listing of the module's MIR to w — the textual
// form behind the driver's emit-mir flag.
func (m *Module) Dump(w io.Writer) {
	fmt.Fprintf(w, "module %s\n", m.Name)
	dumpBlock(w, m.Global, "")

	names := make([]string, 0, len(m.fns))
	for name := range m.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fn := m.fns[name]
		fmt.Fprintf(w, "\nfn %s %s", fn.Name, fn.Type)
		if fn.Linkage == LinkageExtern {
			fmt.Fprintf(w, " extern\n")
			continue
		}
		fmt.Fprintln(w)
		for _, blk := range fn.Blocks {
			dumpBlock(w, blk, "  ")
		}
	}
}

func dumpBlock(w io.Writer, b *Block, indent string) {
	if b.First() == nil {
		return
	}
	fmt.Fprintf(w, "%s%s:\n", indent, b.Name)
	for i := b.First(); i != nil; i = i.Next {
		fmt.Fprintf(w, "%s  %s", indent, i)
		if i.Value.Type != nil {
			fmt.Fprintf(w, " : %s", i.Value.Type)
		}
		if i.Value.IsComptime {
			fmt.Fprint(w, " #comptime")
		}
		fmt.Fprintln(w)
	}
}
