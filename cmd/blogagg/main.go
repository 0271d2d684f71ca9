package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/blogagg/internal/aggregate"
	"github.com/TobiSchelling/blogagg/internal/config"
	"github.com/TobiSchelling/blogagg/internal/fetch"
	"github.com/TobiSchelling/blogagg/internal/localstore"
	"github.com/TobiSchelling/blogagg/internal/newt"
	"github.com/TobiSchelling/blogagg/internal/pipeline"
	"github.com/TobiSchelling/blogagg/internal/query"
	"github.com/TobiSchelling/blogagg/internal/seed"
	"github.com/TobiSchelling/blogagg/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "blogagg",
	Short:   "Blog content aggregation over a headless CMS",
	Long:    "blogagg queries a Newt space (or a local SQLite store) for articles, tags, authors and yearly archives.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if strings.EqualFold(cfg.Logging.Level, "DEBUG") {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(appCmd)
	rootCmd.AddCommand(articlesCmd)
	rootCmd.AddCommand(articleCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(authorsCmd)
	rootCmd.AddCommand(archivesCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("blogagg", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/blogagg/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to select a store backend, then run 'blogagg seed' or set your API token.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store configuration and local store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Store:")
		fmt.Printf("  Backend: %s\n", cfg.Store.Backend)
		fmt.Printf("  App: %s\n", cfg.Store.AppUID)
		fmt.Printf("  Models: article=%s tag=%s author=%s\n", cfg.Store.Models.Article, cfg.Store.Models.Tag, cfg.Store.Models.Author)
		fmt.Printf("  Count concurrency: %d\n", cfg.Store.Concurrency)

		if cfg.Store.Backend == config.BackendNewt {
			client := newClient()
			fmt.Printf("  Space: %s (%s)\n", cfg.Store.SpaceUID, cfg.Store.APIType)
			fmt.Printf("  Token (%s): %v\n", cfg.Store.TokenEnv, client.IsConfigured())
			return nil
		}

		store, err := openLocal()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		fmt.Println("\nLocal store:")
		fmt.Printf("  Path: %s\n", store.Path())
		fmt.Printf("  Articles: %d\n", stats.Articles)
		fmt.Printf("  Tags: %d\n", stats.Tags)
		fmt.Printf("  Authors: %d\n", stats.Authors)
		return nil
	},
}

// --- query commands ---

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Show application metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *aggregate.Service) error {
			app, err := svc.FetchApp(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s)\n", app.Name, app.UID)
			if app.Description != "" {
				fmt.Printf("  %s\n", app.Description)
			}
			if app.Cover != nil {
				fmt.Printf("  Cover: %s\n", app.Cover.Src)
			}
			return nil
		})
	},
}

var listFlags struct {
	search string
	tag    string
	author string
	year   int
	page   int
	limit  int
}

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "List articles, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *aggregate.Service) error {
			params := articleParams()
			articles, total, err := svc.FetchArticles(cmd.Context(), params)
			if err != nil {
				return err
			}
			if len(articles) == 0 {
				fmt.Println("No articles found.")
				return nil
			}
			for _, a := range articles {
				fmt.Printf("  %s  %-30s %s\n", a.CreatedAt().UTC().Format("2006-01-02"), a.Slug, a.Title)
			}
			page := params.PageRequest()
			pages := (total + page.Limit - 1) / page.Limit
			fmt.Printf("\nPage %d of %d (%d articles)\n", page.Page, pages, total)
			return nil
		})
	},
}

func init() {
	f := articlesCmd.Flags()
	f.StringVar(&listFlags.search, "search", "", "Match title or body")
	f.StringVar(&listFlags.tag, "tag", "", "Filter by tag id")
	f.StringVar(&listFlags.author, "author", "", "Filter by author id")
	f.IntVar(&listFlags.year, "year", 0, "Filter by creation year")
	f.IntVar(&listFlags.page, "page", 1, "Page number")
	f.IntVar(&listFlags.limit, "limit", 0, "Articles per page (default site.page_limit)")
}

func articleParams() query.ArticleParams {
	limit := listFlags.limit
	if limit == 0 {
		limit = cfg.Site.PageLimit
	}
	return query.ArticleParams{
		Search:    listFlags.search,
		Tag:       listFlags.tag,
		Author:    listFlags.author,
		Year:      listFlags.year,
		Page:      listFlags.page,
		PageLimit: limit,
	}
}

var articleCmd = &cobra.Command{
	Use:   "article [slug]",
	Short: "Show one article with its neighbours",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *aggregate.Service) error {
			ctx := cmd.Context()
			a, err := svc.FetchCurrentArticle(ctx, args[0])
			if err != nil {
				return err
			}
			if a == nil {
				return fmt.Errorf("article %q not found", args[0])
			}
			prev, err := svc.FetchPreviousArticle(ctx, a.CreatedAt())
			if err != nil {
				return err
			}
			next, err := svc.FetchNextArticle(ctx, a.CreatedAt())
			if err != nil {
				return err
			}

			fmt.Println(a.Title)
			fmt.Printf("  %s", a.CreatedAt().UTC().Format("2006-01-02"))
			if a.Author != nil && a.Author.Name != "" {
				fmt.Printf(" by %s", a.Author.Name)
			}
			fmt.Println()
			if len(a.Tags) > 0 {
				names := make([]string, len(a.Tags))
				for i, t := range a.Tags {
					names[i] = t.Name
				}
				fmt.Printf("  Tags: %s\n", strings.Join(names, ", "))
			}
			fmt.Printf("\n%s\n\n", a.Body)
			if prev != nil {
				fmt.Printf("Previous: %s (%s)\n", prev.Title, prev.Slug)
			}
			if next != nil {
				fmt.Printf("Next: %s (%s)\n", next.Title, next.Slug)
			}
			return nil
		})
	},
}

var allTaxonomy bool

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Show popular tags with article counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *aggregate.Service) error {
			tags, err := svc.FetchTags(cmd.Context())
			if err != nil {
				return err
			}
			if !allTaxonomy {
				tags = svc.State().Snapshot().PopularTags()
			}
			for _, t := range tags {
				fmt.Printf("  %-24s %4d  (%s)\n", t.Name, t.Total, t.ID)
			}
			return nil
		})
	},
}

var authorsCmd = &cobra.Command{
	Use:   "authors",
	Short: "Show authors with article counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *aggregate.Service) error {
			authors, err := svc.FetchAuthors(cmd.Context())
			if err != nil {
				return err
			}
			if !allTaxonomy {
				authors = svc.State().Snapshot().PublicAuthors()
			}
			for _, a := range authors {
				fmt.Printf("  %-24s %4d  (%s)\n", a.FullName, a.Total, a.ID)
			}
			return nil
		})
	},
}

func init() {
	tagsCmd.Flags().BoolVar(&allTaxonomy, "all", false, "Include entries without articles, in taxonomy order")
	authorsCmd.Flags().BoolVar(&allTaxonomy, "all", false, "Include authors without articles")
}

var archivesCmd = &cobra.Command{
	Use:   "archives",
	Short: "Show article counts per year",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *aggregate.Service) error {
			buckets, err := svc.FetchArchives(cmd.Context())
			if err != nil {
				return err
			}
			if len(buckets) == 0 {
				fmt.Println("No articles yet.")
			}
			for _, b := range buckets {
				fmt.Printf("  %d  %d\n", b.Year, b.Count)
			}
			return nil
		})
	},
}

// --- refresh command ---

var (
	refreshSlug string
	refreshJSON bool
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run every aggregation for one page and print the resulting state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *aggregate.Service) error {
			result := pipeline.New(svc).Run(cmd.Context(), pipeline.Request{
				Articles: articleParams(),
				Slug:     refreshSlug,
			})

			if refreshJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result.Snapshot)
			}

			for i, step := range result.Steps {
				fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
				if step.Err != nil {
					fmt.Printf("  Error: %v\n", step.Err)
				} else {
					fmt.Printf("  %s\n", step.Summary)
				}
			}
			if n := len(result.Failed()); n > 0 {
				return fmt.Errorf("%d step(s) failed", n)
			}
			return nil
		})
	},
}

func init() {
	refreshCmd.Flags().StringVar(&refreshSlug, "slug", "", "Current article slug")
	refreshCmd.Flags().BoolVar(&refreshJSON, "json", false, "Print the committed state as JSON")
	refreshCmd.Flags().IntVar(&listFlags.page, "page", 1, "Page number")
	refreshCmd.Flags().StringVar(&listFlags.search, "search", "", "Match title or body")
}

// --- seed command ---

var (
	seedFeeds    []string
	fetchContent bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import RSS/Atom feeds into the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocal()
		if err != nil {
			return err
		}
		defer store.Close()

		var feeds []seed.Feed
		for _, f := range seedFeeds {
			feeds = append(feeds, seed.Feed{Location: f})
		}
		if len(feeds) == 0 {
			for _, f := range cfg.Seed.Feeds {
				feeds = append(feeds, seed.Feed{Location: f.URL, Name: f.Name})
			}
		}
		if len(feeds) == 0 {
			return errors.New("no feeds given; pass --feed or configure seed.feeds")
		}

		var opts []seed.Option
		if fetchContent {
			opts = append(opts, seed.WithPageFetcher(fetch.NewPageFetcher(15*time.Second)))
		}
		seeder := seed.NewSeeder(store, cfg.Store.AppUID, opts...)

		fmt.Printf("Seeding %d feed(s) into %s...\n", len(feeds), store.Path())
		result := seeder.SeedAll(cmd.Context(), feeds)

		fmt.Println("\nSeeding complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  New articles: %d\n", result.NewArticles)
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)
		if result.Skipped > 0 {
			fmt.Printf("  Entries without title or link: %d\n", result.Skipped)
		}
		if cfg.Store.Backend != config.BackendSQLite {
			fmt.Println("\nNote: store.backend is not 'sqlite'; queries still go to the remote store.")
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringArrayVar(&seedFeeds, "feed", nil, "Feed URL or file path (repeatable)")
	seedCmd.Flags().BoolVar(&fetchContent, "fetch-content", false, "Replace entry bodies with the readable text of the linked page")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local preview server",
	RunE: func(cmd *cobra.Command, args []string) error {
		src, closeSrc, err := openSource()
		if err != nil {
			return err
		}
		defer closeSrc()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(src, models(), cfg.Site.PageLimit, port, aggregate.WithConcurrency(cfg.Store.Concurrency))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default server.port)")
}

// --- helpers ---

func models() aggregate.Models {
	return aggregate.Models{
		App:     cfg.Store.AppUID,
		Article: cfg.Store.Models.Article,
		Tag:     cfg.Store.Models.Tag,
		Author:  cfg.Store.Models.Author,
	}
}

func newClient() *newt.Client {
	return newt.NewClient(newt.Options{
		SpaceUID:  cfg.Store.SpaceUID,
		Token:     cfg.Token(),
		APIType:   cfg.Store.APIType,
		RateLimit: cfg.Store.RateLimit,
	})
}

func openLocal() (*localstore.Store, error) {
	return localstore.Open(cfg.LocalPath(), localstore.Models{
		Article: cfg.Store.Models.Article,
		Tag:     cfg.Store.Models.Tag,
		Author:  cfg.Store.Models.Author,
	})
}

// openSource returns the configured content store and a function that
// releases it.
func openSource() (fetch.Source, func(), error) {
	if cfg.Store.Backend == config.BackendNewt {
		client := newClient()
		if !client.IsConfigured() {
			return nil, nil, fmt.Errorf("%w: set store.space_uid and $%s", newt.ErrNotConfigured, cfg.Store.TokenEnv)
		}
		return client, func() {}, nil
	}

	store, err := openLocal()
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

func withService(fn func(svc *aggregate.Service) error) error {
	src, closeSrc, err := openSource()
	if err != nil {
		return err
	}
	defer closeSrc()
	return fn(aggregate.New(src, models(), nil, aggregate.WithConcurrency(cfg.Store.Concurrency)))
}
