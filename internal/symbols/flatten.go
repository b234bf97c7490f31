package symbols

// Flatten returns t extended with one "Class.member" entry per class member,
// recursively for nested classes. Class entries keep their Members. The
// members of a nested class are appended before the nested class itself.
func Flatten(t Table) Table {
	out := make(Table, len(t), len(t)*2)
	copy(out, t)
	for _, e := range t {
		if e.Symbol == nil || e.Symbol.Kind != KindClass {
			continue
		}
		out = flattenClass(e.Name, e.Symbol, out)
	}
	return out
}

func flattenClass(className string, class *Symbol, out Table) Table {
	for _, name := range class.Members.Keys() {
		member, _ := class.Members.Get(name)
		qualified := className + "." + name
		if member.Kind == KindClass {
			out = flattenClass(qualified, member, out)
		}
		flat := member.Clone()
		flat.Members = nil
		flat.FromClass = className
		flat.IsMember = true
		out = append(out, Entry{Name: qualified, Symbol: flat})
	}
	return out
}
