package request

// Wrap converts results from older call sites, which hand out plain
// unvalidated objects, into canonical requests. Nil entries are skipped.
func Wrap(results []Fields) []*Request {
	out := make([]*Request, 0, len(results))
	for _, f := range results {
		if f == nil {
			continue
		}
		out = append(out, FromLegacy(f))
	}
	return out
}

// Unwrap returns the plain object form expected by older call sites.
// Bookkeeping such as creation warnings is not included.
func Unwrap(r *Request) Fields {
	if r == nil {
		return nil
	}
	return r.Fields()
}

// UnwrapAll applies Unwrap to every request.
func UnwrapAll(reqs []*Request) []Fields {
	out := make([]Fields, 0, len(reqs))
	for _, r := range reqs {
		if r == nil {
			continue
		}
		out = append(out, Unwrap(r))
	}
	return out
}
