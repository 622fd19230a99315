package importer

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/circulate/core"
	"gopkg.in/yaml.v3"
)

// Target receives imported entries. *circulate.Library satisfies it.
type Target interface {
	AddBook(ctx context.Context, book core.Book) error
	AddBorrower(ctx context.Context, borrower core.Borrower) error
	CheckoutBook(ctx context.Context, username, isbn string) error
}

// Checkout is one catalog checkout entry.
type Checkout struct {
	Username string `yaml:"username"`
	ISBN     string `yaml:"isbn"`
}

// Catalog is the decoded form of a catalog file.
type Catalog struct {
	Books     []core.Book     `yaml:"books"`
	Borrowers []core.Borrower `yaml:"borrowers"`
	Checkouts []Checkout      `yaml:"checkouts"`
}

// ReadCatalog decodes a YAML catalog.
func ReadCatalog(r io.Reader) (*Catalog, error) {
	var cat Catalog
	if err := yaml.NewDecoder(r).Decode(&cat); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return &cat, nil
}

// LoadCatalog reads the YAML catalog at path.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCatalog(f)
}

// Entry kinds reported in failures.
const (
	KindBook     = "book"
	KindBorrower = "borrower"
	KindCheckout = "checkout"
)

// Failure is one catalog entry that could not be imported.
type Failure struct {
	Kind string `yaml:"kind"`
	Key  string `yaml:"key"`
	Err  error  `yaml:"-"`
}

// Code returns the failure's error code, or the error text for uncoded errors.
func (f Failure) Code() string {
	if code, ok := core.CodeOf(f.Err); ok {
		return string(code)
	}
	return f.Err.Error()
}

// Report summarizes an import.
type Report struct {
	Books     int       `yaml:"books"`
	Borrowers int       `yaml:"borrowers"`
	Checkouts int       `yaml:"checkouts"`
	Failures  []Failure `yaml:"-"`
}

type report struct {
	mu sync.Mutex
	Report
}

func (r *report) record(kind, key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.Failures = append(r.Failures, Failure{Kind: kind, Key: key, Err: err})
		return
	}
	switch kind {
	case KindBook:
		r.Books++
	case KindBorrower:
		r.Borrowers++
	case KindCheckout:
		r.Checkouts++
	}
}

// Importer loads catalogs into a Target using a worker pool.
type Importer struct {
	target Target
	pool   *ants.Pool
	logger *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer) error

// WithPoolSize sets the worker pool size.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(im *Importer) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if im.pool != nil {
			im.pool.Release()
		}
		im.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(im *Importer) error {
		if logger == nil {
			logger = slog.Default()
		}
		im.logger = logger
		return nil
	}
}

// New creates an Importer writing to target.
func New(target Target, opts ...Option) (*Importer, error) {
	if target == nil {
		return nil, ErrTargetRequired
	}
	pool, err := ants.NewPool(max(runtime.NumCPU(), 1))
	if err != nil {
		return nil, err
	}
	im := &Importer{
		target: target,
		pool:   pool,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(im); err != nil {
			im.Release()
			return nil, err
		}
	}
	return im, nil
}

// Import adds every entry of cat. Entry failures are collected in the
// report; the returned error is non-nil only when work could not be
// scheduled or ctx was cancelled.
func (im *Importer) Import(ctx context.Context, cat *Catalog) (*Report, error) {
	var r report

	var wg sync.WaitGroup
	submit := func(kind, key string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		wg.Add(1)
		err := im.pool.Submit(func() {
			defer wg.Done()
			err := fn()
			if err != nil {
				im.logger.Debug("import entry failed", "kind", kind, "key", key, "err", err)
			}
			r.record(kind, key, err)
		})
		if err != nil {
			wg.Done()
		}
		return err
	}

	for _, book := range cat.Books {
		if err := submit(KindBook, book.ISBN, func() error { return im.target.AddBook(ctx, book) }); err != nil {
			wg.Wait()
			return &r.Report, err
		}
	}
	for _, borrower := range cat.Borrowers {
		if err := submit(KindBorrower, borrower.Username, func() error { return im.target.AddBorrower(ctx, borrower) }); err != nil {
			wg.Wait()
			return &r.Report, err
		}
	}
	wg.Wait()

	for _, co := range cat.Checkouts {
		key := co.Username + "/" + co.ISBN
		if err := submit(KindCheckout, key, func() error { return im.target.CheckoutBook(ctx, co.Username, co.ISBN) }); err != nil {
			wg.Wait()
			return &r.Report, err
		}
	}
	wg.Wait()

	slices.SortFunc(r.Failures, func(a, b Failure) int {
		return cmp.Or(cmp.Compare(a.Kind, b.Kind), cmp.Compare(a.Key, b.Key))
	})
	im.logger.Info("import finished",
		"books", r.Books, "borrowers", r.Borrowers, "checkouts", r.Checkouts, "failures", len(r.Failures))
	return &r.Report, nil
}

// Release releases the worker pool.
// The importer should not be used after calling Release.
func (im *Importer) Release() {
	if im.pool != nil {
		im.pool.Release()
	}
}
