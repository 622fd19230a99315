package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/poiesic/circulate"
	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/httpapi"
	"github.com/poiesic/circulate/importer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Serve the catalog over HTTP",
			Action: serveCommand,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "listen",
					Usage: "Listen address (overrides listen_addr)",
				},
			},
		},
		{
			Name:      "import",
			Usage:     "Import a YAML catalog of books, borrowers and checkouts",
			ArgsUsage: "<catalog.yaml>",
			Action:    importCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "workers",
					Usage: "Worker pool size (overrides import_workers)",
				},
			},
		},
		{
			Name:   "drop",
			Usage:  "Delete every book, borrower and checkout",
			Action: dropCommand,
		},
		bookCommand(),
		borrowerCommand(),
		{
			Name:      "checkout",
			Usage:     "Check a book out to a borrower",
			ArgsUsage: "<username> <isbn>",
			Action: pairAction(func(ctx context.Context, lib *circulate.Library, username, isbn string) error {
				return lib.CheckoutBook(ctx, username, isbn)
			}),
		},
		{
			Name:      "return",
			Usage:     "Return a borrowed book",
			ArgsUsage: "<username> <isbn>",
			Action: pairAction(func(ctx context.Context, lib *circulate.Library, username, isbn string) error {
				return lib.ReturnBook(ctx, username, isbn)
			}),
		},
		{
			Name:      "borrowers",
			Usage:     "List the borrowers holding a book",
			ArgsUsage: "<isbn>",
			Action: func(c *cli.Context) error {
				isbn, err := oneArg(c, "isbn")
				if err != nil {
					return err
				}
				return withLibrary(c, func(lib *circulate.Library) error {
					borrowers, err := lib.GetBookBorrowers(c.Context, isbn)
					if err != nil {
						return err
					}
					return output(c, borrowers)
				})
			},
		},
		{
			Name:      "borrowed",
			Usage:     "List the books a borrower holds",
			ArgsUsage: "<username>",
			Action: func(c *cli.Context) error {
				username, err := oneArg(c, "username")
				if err != nil {
					return err
				}
				return withLibrary(c, func(lib *circulate.Library) error {
					books, err := lib.GetBorrowedBooks(c.Context, username)
					if err != nil {
						return err
					}
					return output(c, books)
				})
			},
		},
	}
}

// output writes v to the app's writer as YAML.
func output(c *cli.Context, v any) error {
	enc := yaml.NewEncoder(c.App.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func oneArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one argument: <%s>", name)
	}
	return c.Args().First(), nil
}

func pairAction(fn func(ctx context.Context, lib *circulate.Library, username, isbn string) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 2 {
			return errors.New("expected two arguments: <username> <isbn>")
		}
		return withLibrary(c, func(lib *circulate.Library) error {
			return fn(c.Context, lib, c.Args().Get(0), c.Args().Get(1))
		})
	}
}

func dropCommand(c *cli.Context) error {
	return withLibrary(c, func(lib *circulate.Library) error {
		if err := lib.DropDB(c.Context); err != nil {
			return err
		}
		slog.Info("catalog dropped")
		return nil
	})
}

func importCommand(c *cli.Context) error {
	path, err := oneArg(c, "catalog.yaml")
	if err != nil {
		return err
	}
	cat, err := importer.LoadCatalog(path)
	if err != nil {
		return err
	}
	workers := configFrom(c).ImportWorkers
	if c.IsSet("workers") {
		workers = c.Int("workers")
	}

	return withLibrary(c, func(lib *circulate.Library) error {
		im, err := importer.New(lib, importer.WithPoolSize(workers))
		if err != nil {
			return err
		}
		defer im.Release()

		report, err := im.Import(c.Context, cat)
		if err != nil {
			return err
		}
		type failure struct {
			Kind string `yaml:"kind"`
			Key  string `yaml:"key"`
			Code string `yaml:"code"`
		}
		summary := struct {
			importer.Report `yaml:",inline"`
			Failures        []failure `yaml:"failures,omitempty"`
		}{Report: *report}
		for _, f := range report.Failures {
			summary.Failures = append(summary.Failures, failure{Kind: f.Kind, Key: f.Key, Code: f.Code()})
		}
		return output(c, summary)
	})
}

func serveCommand(c *cli.Context) error {
	cfg := configFrom(c)
	addr := cfg.ListenAddr
	if c.IsSet("listen") {
		addr = c.String("listen")
	}

	reg := prometheus.NewRegistry()
	if err := circulate.RegisterMetrics(reg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withLibrary(c, func(lib *circulate.Library) error {
		srv := &http.Server{
			Addr:              addr,
			Handler:           httpapi.NewServer(lib, httpapi.WithGatherer(reg)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			slog.Info("serving catalog", "addr", addr, "backend", cfg.Backend)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		slog.Info("server stopped")
		return nil
	})
}

func bookFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title", Usage: "Book title"},
		&cli.StringSliceFlag{Name: "author", Usage: "Author (repeatable)"},
		&cli.StringFlag{Name: "page-num", Usage: "Number of pages"},
		&cli.StringFlag{Name: "quantity", Usage: "Number of copies"},
	}
}

// bookFromFlags reads the book flags. Numbers are parsed here so bad input
// fails before anything is opened.
func bookFromFlags(c *cli.Context) (core.Book, error) {
	pageNum, err := core.ParseCount("page_num", c.String("page-num"))
	if err != nil {
		return core.Book{}, err
	}
	book := core.Book{
		Title:   c.String("title"),
		Author:  c.StringSlice("author"),
		PageNum: pageNum,
	}
	if c.IsSet("quantity") {
		quantity, err := core.ParseCount("quantity", c.String("quantity"))
		if err != nil {
			return core.Book{}, err
		}
		book.Quantity = core.Quantity(quantity)
	}
	return book, nil
}

func editOpts(c *cli.Context) []circulate.EditOption {
	if c.Bool("override") {
		return []circulate.EditOption{circulate.WithOverride()}
	}
	return nil
}

func overrideFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "override",
		Usage: "Replace optional fields wholesale, clearing those not given",
	}
}

func bookCommand() *cli.Command {
	return &cli.Command{
		Name:  "book",
		Usage: "Manage books",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a book",
				ArgsUsage: "<isbn>",
				Flags:     bookFlags(),
				Action: func(c *cli.Context) error {
					isbn, err := oneArg(c, "isbn")
					if err != nil {
						return err
					}
					book, err := bookFromFlags(c)
					if err != nil {
						return err
					}
					book.ISBN = isbn
					return withLibrary(c, func(lib *circulate.Library) error {
						return lib.AddBook(c.Context, book)
					})
				},
			},
			{
				Name:      "get",
				Usage:     "Show a book",
				ArgsUsage: "<isbn>",
				Action: func(c *cli.Context) error {
					isbn, err := oneArg(c, "isbn")
					if err != nil {
						return err
					}
					return withLibrary(c, func(lib *circulate.Library) error {
						book, err := lib.GetBook(c.Context, isbn)
						if err != nil {
							return err
						}
						if book == nil {
							return core.ErrBookNotExists
						}
						return output(c, book)
					})
				},
			},
			{
				Name:      "edit",
				Usage:     "Edit a book",
				ArgsUsage: "<isbn>",
				Flags:     append(bookFlags(), overrideFlag()),
				Action: func(c *cli.Context) error {
					isbn, err := oneArg(c, "isbn")
					if err != nil {
						return err
					}
					patch, err := bookFromFlags(c)
					if err != nil {
						return err
					}
					return withLibrary(c, func(lib *circulate.Library) error {
						book, err := lib.EditBook(c.Context, isbn, patch, editOpts(c)...)
						if err != nil {
							return err
						}
						return output(c, book)
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a book",
				ArgsUsage: "<isbn>",
				Action: func(c *cli.Context) error {
					isbn, err := oneArg(c, "isbn")
					if err != nil {
						return err
					}
					return withLibrary(c, func(lib *circulate.Library) error {
						return lib.DeleteBook(c.Context, isbn)
					})
				},
			},
			{
				Name:  "search",
				Usage: "Find books by exact title or author",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "Title to match"},
					&cli.StringFlag{Name: "author", Usage: "Author to match"},
				},
				Action: func(c *cli.Context) error {
					if c.IsSet("title") == c.IsSet("author") {
						return errors.New("exactly one of --title or --author is required")
					}
					return withLibrary(c, func(lib *circulate.Library) error {
						var (
							books []*core.Book
							err   error
						)
						if c.IsSet("title") {
							books, err = lib.SearchByTitle(c.Context, c.String("title"))
						} else {
							books, err = lib.SearchByAuthor(c.Context, c.String("author"))
						}
						if err != nil {
							return err
						}
						return output(c, books)
					})
				},
			},
			{
				Name:  "sort",
				Usage: "List every book in order",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "by",
						Usage: "Sort key (title, author, isbn, page_num)",
						Value: "isbn",
					},
				},
				Action: func(c *cli.Context) error {
					return withLibrary(c, func(lib *circulate.Library) error {
						sorts := map[string]func(context.Context) ([]*core.Book, error){
							"title":    lib.SortByTitle,
							"author":   lib.SortByAuthor,
							"isbn":     lib.SortByISBN,
							"page_num": lib.SortByPageNum,
						}
						sort, ok := sorts[c.String("by")]
						if !ok {
							return fmt.Errorf("invalid sort key %q: must be one of title, author, isbn, page_num", c.String("by"))
						}
						books, err := sort(c.Context)
						if err != nil {
							return err
						}
						return output(c, books)
					})
				},
			},
		},
	}
}

func borrowerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "Borrower name"},
		&cli.StringFlag{Name: "phone", Usage: "Borrower phone"},
	}
}

func borrowerCommand() *cli.Command {
	return &cli.Command{
		Name:  "borrower",
		Usage: "Manage borrowers",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Register a borrower",
				ArgsUsage: "<username>",
				Flags:     borrowerFlags(),
				Action: func(c *cli.Context) error {
					username, err := oneArg(c, "username")
					if err != nil {
						return err
					}
					borrower := core.Borrower{Username: username, Name: c.String("name"), Phone: c.String("phone")}
					return withLibrary(c, func(lib *circulate.Library) error {
						return lib.AddBorrower(c.Context, borrower)
					})
				},
			},
			{
				Name:      "get",
				Usage:     "Show a borrower",
				ArgsUsage: "<username>",
				Action: func(c *cli.Context) error {
					username, err := oneArg(c, "username")
					if err != nil {
						return err
					}
					return withLibrary(c, func(lib *circulate.Library) error {
						borrower, err := lib.GetBorrower(c.Context, username)
						if err != nil {
							return err
						}
						if borrower == nil {
							return core.ErrBorrowerNotExists
						}
						return output(c, borrower)
					})
				},
			},
			{
				Name:      "edit",
				Usage:     "Edit a borrower",
				ArgsUsage: "<username>",
				Flags:     append(borrowerFlags(), overrideFlag()),
				Action: func(c *cli.Context) error {
					username, err := oneArg(c, "username")
					if err != nil {
						return err
					}
					patch := core.Borrower{Name: c.String("name"), Phone: c.String("phone")}
					return withLibrary(c, func(lib *circulate.Library) error {
						borrower, err := lib.EditBorrower(c.Context, username, patch, editOpts(c)...)
						if err != nil {
							return err
						}
						return output(c, borrower)
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a borrower",
				ArgsUsage: "<username>",
				Action: func(c *cli.Context) error {
					username, err := oneArg(c, "username")
					if err != nil {
						return err
					}
					return withLibrary(c, func(lib *circulate.Library) error {
						return lib.DeleteBorrower(c.Context, username)
					})
				},
			},
			{
				Name:  "search",
				Usage: "Find borrowers by exact name",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Name to match", Required: true},
				},
				Action: func(c *cli.Context) error {
					return withLibrary(c, func(lib *circulate.Library) error {
						borrowers, err := lib.SearchByName(c.Context, c.String("name"))
						if err != nil {
							return err
						}
						return output(c, borrowers)
					})
				},
			},
		},
	}
}
