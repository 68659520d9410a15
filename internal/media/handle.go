package media

// handle is the concrete MediaHandle both backends hand out.
type handle struct {
	id    string
	kind  string
	close func() error
}

func (h *handle) ID() string   { return h.id }
func (h *handle) Kind() string { return h.kind }

func (h *handle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}
