package cpp

import "io"

// Reader adapts a Preprocessor to io.Reader, yielding the text of the
// output tokens.
type Reader struct {
	pp  *Preprocessor
	buf []byte
	err error
}

// NewReader creates a Reader over pp.
func NewReader(pp *Preprocessor) *Reader {
	return &Reader{pp: pp}
}

func (r *Reader) Read(b []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		tok, err := r.pp.Token()
		switch {
		case err != nil:
			r.err = err
		case tok.Type == PP_EOF:
			r.err = io.EOF
		default:
			r.buf = append(r.buf[:0], tok.Text...)
		}
	}
	n := copy(b, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// Close closes the underlying preprocessor.
func (r *Reader) Close() error {
	return r.pp.Close()
}
