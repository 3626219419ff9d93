package compiler

// librarySnippet is a helper function appended to a generated script when
// the program references it.
type librarySnippet struct {
	name string
	code string
}

// library lists the snippets in output order. Each one stands alone; the
// only shared dependency is the runtime object o.
var library = []librarySnippet{
	{"_asc", `function _asc(s) { return s.length ? s.charCodeAt(0) : o.error(5); }`},
	{"_bin", `function _bin(n, pad) { let s = (n & 0xffff).toString(2); while (s.length < (pad || 0)) { s = "0" + s; } return s; }`},
	{"_cint", `function _cint(x) { return Math.sign(x) * Math.round(Math.abs(x)); }`},
	{"_hex", `function _hex(n, pad) { let s = (n & 0xffff).toString(16).toUpperCase(); while (s.length < (pad || 0)) { s = "0" + s; } return s; }`},
	{"_instr", `function _instr(s, find, start) { return s.indexOf(find, (start || 1) - 1) + 1; }`},
	{"_left", `function _left(s, n) { return s.slice(0, n); }`},
	{"_mid", `function _mid(s, p, n) { return n === undefined ? s.slice(p - 1) : s.slice(p - 1, p - 1 + n); }`},
	{"_midAssign", `function _midAssign(s, p, n, v) { if (n === undefined || n > v.length) { n = v.length; } if (n > s.length - p + 1) { n = s.length - p + 1; } return s.slice(0, p - 1) + v.slice(0, n) + s.slice(p - 1 + n); }`},
	{"_right", `function _right(s, n) { return s.slice(Math.max(0, s.length - n)); }`},
	{"_round", `function _round(x, d) { const f = Math.pow(10, d || 0); return Math.round(x * f) / f; }`},
	{"_space", `function _space(n) { return " ".repeat(n); }`},
	{"_string", `function _string(n, c) { return (typeof c === "number" ? String.fromCharCode(c) : c.charAt(0)).repeat(n); }`},
	{"_val", `function _val(s) { const t = s.trim(); if (/^&h/i.test(t)) { return parseInt(t.slice(2), 16) || 0; } if (/^&x/i.test(t)) { return parseInt(t.slice(2), 2) || 0; } const n = parseFloat(t); return isNaN(n) ? 0 : n; }`},
}

// LibraryNames returns the snippet names in output order.
func LibraryNames() []string {
	out := make([]string, len(library))
	for i, s := range library {
		out[i] = s.name
	}
	return out
}
