// Package listing walks paginated object listings.
package listing

import (
	"context"
	"fmt"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// Paginator yields one listing page per call until the backend stops
// returning continuation tokens.
type Paginator struct {
	lister    backend.Lister
	container string
	prefix    string
	access    backend.Access

	token string
	done  bool
}

// NewPaginator creates a paginator over container/prefix.
func NewPaginator(lister backend.Lister, container, prefix string, acc backend.Access) *Paginator {
	return &Paginator{
		lister:    lister,
		container: container,
		prefix:    prefix,
		access:    acc,
	}
}

// HasMorePages reports whether NextPage may return more entries.
func (p *Paginator) HasMorePages() bool {
	return !p.done
}

// NextPage fetches the next page. After an error the paginator is finished.
func (p *Paginator) NextPage(ctx context.Context) (backend.Page, error) {
	if p.done {
		return backend.Page{}, nil
	}

	page, err := p.lister.ListPage(ctx, p.container, p.prefix, p.token, p.access)
	if err != nil {
		p.done = true
		return backend.Page{}, err
	}

	p.token = page.NextToken
	p.done = page.NextToken == ""
	return page, nil
}

// All collects every entry under container/prefix. When a page fails the
// entries gathered so far are returned together with the error. A failure
// after the first page also matches errors.ErrListingIncomplete; a failure
// on the first page is returned as is.
func All(
	ctx context.Context,
	lister backend.Lister,
	container, prefix string,
	acc backend.Access,
) ([]rftypes.Entry, error) {
	var (
		entries []rftypes.Entry
		pages   int
	)

	p := NewPaginator(lister, container, prefix, acc)
	for p.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		page, err := p.NextPage(ctx)
		if err != nil {
			if pages > 0 {
				err = fmt.Errorf("%w after %d pages: %w", errors.ErrListingIncomplete, pages, err)
			}
			return entries, err
		}
		pages++
		entries = append(entries, page.Entries...)
	}
	return entries, nil
}
