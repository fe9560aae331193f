package table

import (
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Encoding decodes raw file bytes into UTF-8 text. Decoding is strict: an
// encoding fails on input it cannot represent instead of substituting
// replacement characters, so the ordered fallback can move on.
type Encoding struct {
	Name    string
	decoder func() transform.Transformer
}

// Decode converts b to UTF-8.
func (e Encoding) Decode(b []byte) (string, error) {
	out, _, err := transform.Bytes(e.decoder(), b)
	if err != nil {
		return "", eris.Wrapf(err, "table: decode %s", e.Name)
	}
	return string(out), nil
}

var (
	// Windows1252 rejects the five byte values the code page leaves undefined.
	Windows1252 = Encoding{Name: "windows-1252", decoder: func() transform.Transformer {
		return transform.Chain(rejectBytes(0x81, 0x8D, 0x8F, 0x90, 0x9D), charmap.Windows1252.NewDecoder())
	}}
	// UTF8 fails on the first invalid sequence.
	UTF8 = Encoding{Name: "utf-8", decoder: func() transform.Transformer {
		return encoding.UTF8Validator
	}}
	ISO88591 = Encoding{Name: "iso-8859-1", decoder: func() transform.Transformer {
		return charmap.ISO8859_1.NewDecoder()
	}}
	Latin1 = Encoding{Name: "latin1", decoder: func() transform.Transformer {
		return charmap.ISO8859_1.NewDecoder()
	}}
)

// DefaultEncodings is the priority order portal files are tried in.
func DefaultEncodings() []Encoding {
	return []Encoding{Windows1252, UTF8, ISO88591, Latin1}
}

// ErrUndefinedByte is returned when input holds a byte the encoding does
// not define.
var ErrUndefinedByte = eris.New("table: byte undefined in encoding")

// byteGuard copies its input unchanged and fails on any listed byte.
type byteGuard struct {
	transform.NopResetter
	bad [256]bool
}

func rejectBytes(bs ...byte) transform.Transformer {
	g := byteGuard{}
	for _, b := range bs {
		g.bad[b] = true
	}
	return g
}

func (g byteGuard) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	n := len(src)
	if n > len(dst) {
		n = len(dst)
		err = transform.ErrShortDst
	}
	for i := 0; i < n; i++ {
		if g.bad[src[i]] {
			copy(dst, src[:i])
			return i, i, ErrUndefinedByte
		}
	}
	copy(dst, src[:n])
	return n, n, err
}
