// Package renderer is the C5 renderer client: it turns a validated label
// document into PNG bytes. The real rasterizer is an external
// collaborator (spec.md §1); this package only needs to satisfy the
// contract from spec.md §4.5/§6.
package renderer

import (
	"context"
	"time"

	"labelgen/internal/labeldoc"
)

// PNGMagic is the 8-byte PNG signature every Render result must begin
// with, per spec.md §8.
var PNGMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Options configures a single render call, per spec.md §4.5.
type Options struct {
	Debug     bool
	TimeoutMS int
}

// DefaultTimeoutMS is the contract default when Options.TimeoutMS is zero.
const DefaultTimeoutMS = 30_000

func (o Options) timeout() time.Duration {
	ms := o.TimeoutMS
	if ms <= 0 {
		ms = DefaultTimeoutMS
	}
	return time.Duration(ms) * time.Millisecond
}

// Client renders a label document to PNG bytes.
type Client interface {
	Render(ctx context.Context, doc labeldoc.Document, opts Options) ([]byte, error)
}
