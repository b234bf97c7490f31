package symbols

import "strings"

// FormatSignature renders sig as "a: int = 1, *args, **kw -> str".
// A nil signature renders as "".
func FormatSignature(sig *Signature) string {
	if sig == nil {
		return ""
	}
	parts := make([]string, 0, len(sig.Args)+2)
	for _, arg := range sig.Args {
		s := arg.Name
		if arg.Type != "" {
			s += ": " + arg.Type
		}
		if arg.Default != nil {
			s += " = " + *arg.Default
		}
		parts = append(parts, s)
	}
	if sig.Vararg != nil {
		parts = append(parts, splatString("*", sig.Vararg))
	}
	if sig.Kwarg != nil {
		parts = append(parts, splatString("**", sig.Kwarg))
	}
	out := strings.Join(parts, ", ")
	if sig.Returns != nil && *sig.Returns != "" {
		out += " -> " + *sig.Returns
	}
	return out
}

func splatString(prefix string, p *Param) string {
	s := prefix + p.Name
	if p.Type != "" {
		s += ": " + p.Type
	}
	return s
}

// ParamNames returns the names of the parameters rendered by
// FormatSignature, in rendering order.
func ParamNames(sig *Signature) []string {
	if sig == nil {
		return nil
	}
	names := make([]string, 0, len(sig.Args)+2)
	for _, arg := range sig.Args {
		names = append(names, arg.Name)
	}
	if sig.Vararg != nil {
		names = append(names, sig.Vararg.Name)
	}
	if sig.Kwarg != nil {
		names = append(names, sig.Kwarg.Name)
	}
	return names
}

// FormatCall renders sig as "name(params) -> returns" using the last dotted
// segment of name. A nil signature renders as "name()".
func FormatCall(name string, sig *Signature) string {
	short := name[strings.LastIndexByte(name, '.')+1:]
	if sig == nil {
		return short + "()"
	}
	params := *sig
	params.Returns = nil
	out := short + "(" + FormatSignature(&params) + ")"
	if sig.Returns != nil && *sig.Returns != "" {
		out += " -> " + *sig.Returns
	}
	return out
}
