// Package lookup turns user-typed account, category and sub-category names
// into store identifiers, creating missing entities on first use.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/store"
)

// Kind selects the lookup table a name belongs to.
type Kind int

const (
	KindAccount Kind = iota + 1
	KindCategory
	KindSubCategory
)

func (k Kind) String() string {
	switch k {
	case KindAccount:
		return "account"
	case KindCategory:
		return "category"
	case KindSubCategory:
		return "sub_category"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// KindOf maps a reference field to its lookup kind.
func KindOf(f core.Field) (Kind, bool) {
	switch f {
	case core.FieldAccount:
		return KindAccount, true
	case core.FieldCategory:
		return KindCategory, true
	case core.FieldSubCategory:
		return KindSubCategory, true
	default:
		return 0, false
	}
}

// Uncategorized names the fallback category and sub-category.
const Uncategorized = "UNCATEGORIZED"

// nearDistance is the edit distance under which a newly created name is
// reported as a likely typo of an existing one.
const nearDistance = 2

var (
	ErrMissingParent = errors.New("sub-category requires a category")
	ErrEmptyName     = errors.New("empty name")
	ErrUnknownKind   = errors.New("unknown lookup kind")
	ErrNoFallback    = errors.New("no fallback category for type")
)

// Hint carries the row context a resolution depends on.
type Hint struct {
	// Type of the row; picks between same-named categories and types
	// newly created ones.
	Type core.Type
	// ParentID is the row's category, required for sub-categories.
	ParentID *int64
}

type Options struct {
	// Currency assigned to accounts created by the resolver.
	Currency string
	// GlobalSubCategories matches sub-category names across all parents
	// instead of within the row's category.
	GlobalSubCategories bool
	Logger              *applog.Logger
}

// Resolver caches the lookup tables and writes through to the store when a
// name has to be created. It is not safe for concurrent use.
type Resolver struct {
	reader store.LookupReader
	writer store.LookupWriter
	opts   Options
	logger *applog.Logger
	fold   cases.Caser

	accounts   []core.Account
	categories []core.Category
	subs       []core.SubCategory
}

func New(r store.LookupReader, w store.LookupWriter, opts Options) *Resolver {
	if opts.Currency == "" {
		opts.Currency = "EUR"
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.Nop()
	}
	return &Resolver{
		reader: r,
		writer: w,
		opts:   opts,
		logger: logger,
		fold:   cases.Fold(),
	}
}

// Refresh reloads the three lookup tables from the store.
func (r *Resolver) Refresh(ctx context.Context) error {
	var (
		accs []core.Account
		cats []core.Category
		subs []core.SubCategory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		accs, err = r.reader.Accounts(gctx)
		return err
	})
	g.Go(func() (err error) {
		cats, err = r.reader.Categories(gctx)
		return err
	})
	g.Go(func() (err error) {
		subs, err = r.reader.SubCategories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refresh lookups: %w", err)
	}
	r.accounts, r.categories, r.subs = accs, cats, subs
	r.logger.DebugContext(ctx, "Lookups refreshed",
		"accounts", len(accs), "categories", len(cats), "sub_categories", len(subs))
	return nil
}

func (r *Resolver) key(s string) string {
	return r.fold.String(strings.TrimSpace(s))
}

// Resolve returns the identifier for text, creating the entity when no
// existing one matches case-insensitively.
func (r *Resolver) Resolve(ctx context.Context, kind Kind, text string, hint Hint) (int64, error) {
	switch kind {
	case KindAccount:
		return r.ResolveAccount(ctx, text)
	case KindCategory:
		return r.ResolveCategory(ctx, text, hint.Type)
	case KindSubCategory:
		return r.ResolveSubCategory(ctx, text, hint.ParentID)
	default:
		return 0, ErrUnknownKind
	}
}

func (r *Resolver) ResolveAccount(ctx context.Context, text string) (int64, error) {
	name := strings.TrimSpace(text)
	if name == "" {
		return 0, ErrEmptyName
	}
	k := r.key(name)
	for _, a := range r.accounts {
		if r.key(a.Name) == k {
			return a.ID, nil
		}
	}
	r.warnNear(ctx, KindAccount, name, r.names(KindAccount, Hint{}))
	id, err := r.writer.CreateAccount(ctx, name, r.opts.Currency)
	if err != nil {
		return 0, fmt.Errorf("create account %q: %w", name, err)
	}
	r.accounts = append(r.accounts, core.Account{ID: id, Name: name, Currency: r.opts.Currency})
	r.logCreated(ctx, KindAccount, id, name)
	return id, nil
}

// ResolveCategory prefers a category of type t. A same-named category of
// the other type is returned when none of type t exists, so validation can
// flag the mismatch; only a wholly unknown name creates a category.
func (r *Resolver) ResolveCategory(ctx context.Context, text string, t core.Type) (int64, error) {
	return r.category(ctx, text, t, false)
}

func (r *Resolver) category(ctx context.Context, text string, t core.Type, strict bool) (int64, error) {
	name := strings.TrimSpace(text)
	if name == "" {
		return 0, ErrEmptyName
	}
	if !t.IsCategoryType() {
		t = core.TypeExpense
	}
	k := r.key(name)
	var other *core.Category
	for i, c := range r.categories {
		if r.key(c.Name) != k {
			continue
		}
		if c.Type == t {
			return c.ID, nil
		}
		if other == nil {
			other = &r.categories[i]
		}
	}
	if other != nil && !strict {
		return other.ID, nil
	}

	r.warnNear(ctx, KindCategory, name, r.names(KindCategory, Hint{}))
	id, err := r.writer.CreateCategory(ctx, name, t)
	if err != nil {
		return 0, fmt.Errorf("create category %q: %w", name, err)
	}
	r.categories = append(r.categories, core.Category{ID: id, Name: name, Type: t})
	r.logCreated(ctx, KindCategory, id, name)
	return id, nil
}

// ResolveSubCategory matches within parent unless GlobalSubCategories is
// set, in which case any sub-category with that name is reused.
func (r *Resolver) ResolveSubCategory(ctx context.Context, text string, parent *int64) (int64, error) {
	name := strings.TrimSpace(text)
	if name == "" {
		return 0, ErrEmptyName
	}
	if parent == nil {
		return 0, ErrMissingParent
	}
	k := r.key(name)
	for _, sc := range r.subs {
		if r.key(sc.Name) != k {
			continue
		}
		if sc.CategoryID == *parent || r.opts.GlobalSubCategories {
			return sc.ID, nil
		}
	}
	r.warnNear(ctx, KindSubCategory, name, r.names(KindSubCategory, Hint{ParentID: parent}))
	return r.createSubCategory(ctx, name, *parent)
}

// EnsureUncategorized creates the fallback category for Income and Expense,
// each with a fallback sub-category.
func (r *Resolver) EnsureUncategorized(ctx context.Context) error {
	for _, t := range []core.Type{core.TypeIncome, core.TypeExpense} {
		id, err := r.DefaultCategory(ctx, t)
		if err != nil {
			return err
		}
		if _, err := r.DefaultSubCategory(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// DefaultCategory returns the UNCATEGORIZED category of type t, creating it
// when missing. Transfer has no fallback.
func (r *Resolver) DefaultCategory(ctx context.Context, t core.Type) (int64, error) {
	if !t.IsCategoryType() {
		return 0, fmt.Errorf("%w: %q", ErrNoFallback, t)
	}
	return r.category(ctx, Uncategorized, t, true)
}

// DefaultSubCategory returns the UNCATEGORIZED sub-category of parent,
// creating it when missing. It never matches under another parent, even
// with GlobalSubCategories.
func (r *Resolver) DefaultSubCategory(ctx context.Context, parent int64) (int64, error) {
	k := r.key(Uncategorized)
	for _, sc := range r.subs {
		if sc.CategoryID == parent && r.key(sc.Name) == k {
			return sc.ID, nil
		}
	}
	return r.createSubCategory(ctx, Uncategorized, parent)
}

func (r *Resolver) createSubCategory(ctx context.Context, name string, parent int64) (int64, error) {
	id, err := r.writer.CreateSubCategory(ctx, name, parent)
	if err != nil {
		return 0, fmt.Errorf("create sub-category %q: %w", name, err)
	}
	r.subs = append(r.subs, core.SubCategory{ID: id, Name: name, CategoryID: parent})
	r.logCreated(ctx, KindSubCategory, id, name)
	return id, nil
}

// Reverse returns the display name of id.
func (r *Resolver) Reverse(kind Kind, id int64) (string, bool) {
	switch kind {
	case KindAccount:
		if a, ok := r.Account(id); ok {
			return a.Name, true
		}
	case KindCategory:
		if c, ok := r.Category(id); ok {
			return c.Name, true
		}
	case KindSubCategory:
		if sc, ok := r.SubCategory(id); ok {
			return sc.Name, true
		}
	}
	return "", false
}

func (r *Resolver) Account(id int64) (core.Account, bool) {
	for _, a := range r.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return core.Account{}, false
}

func (r *Resolver) Category(id int64) (core.Category, bool) {
	for _, c := range r.categories {
		if c.ID == id {
			return c, true
		}
	}
	return core.Category{}, false
}

func (r *Resolver) SubCategory(id int64) (core.SubCategory, bool) {
	for _, sc := range r.subs {
		if sc.ID == id {
			return sc, true
		}
	}
	return core.SubCategory{}, false
}

// Suggest returns up to limit names of kind that fuzzily match text, best
// match first. An empty text lists names alphabetically. Category
// suggestions are narrowed to hint.Type and sub-category suggestions to
// hint.ParentID when those are set.
func (r *Resolver) Suggest(kind Kind, text string, hint Hint, limit int) []string {
	names := r.names(kind, hint)
	text = strings.TrimSpace(text)

	var out []string
	if text == "" {
		out = append(out, names...)
		sort.Strings(out)
	} else {
		ranks := fuzzy.RankFindFold(text, names)
		sort.Stable(ranks)
		for _, rk := range ranks {
			out = append(out, rk.Target)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *Resolver) names(kind Kind, hint Hint) []string {
	var out []string
	seen := map[string]bool{}
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	switch kind {
	case KindAccount:
		for _, a := range r.accounts {
			add(a.Name)
		}
	case KindCategory:
		for _, c := range r.categories {
			if hint.Type.IsCategoryType() && c.Type != hint.Type {
				continue
			}
			add(c.Name)
		}
	case KindSubCategory:
		for _, sc := range r.subs {
			if hint.ParentID != nil && sc.CategoryID != *hint.ParentID {
				continue
			}
			add(sc.Name)
		}
	}
	return out
}

// warnNear logs when name is a small edit away from an existing name,
// which usually means a typo is about to create a duplicate entity.
func (r *Resolver) warnNear(ctx context.Context, kind Kind, name string, existing []string) {
	k := r.key(name)
	for _, n := range existing {
		d := levenshtein.ComputeDistance(k, r.key(n))
		if d > 0 && d <= nearDistance {
			r.logger.WarnContext(ctx, "Creating name close to an existing one",
				applog.FieldKind, kind.String(),
				applog.FieldName, name,
				"similar", n,
				"distance", d)
			return
		}
	}
}

func (r *Resolver) logCreated(ctx context.Context, kind Kind, id int64, name string) {
	r.logger.InfoContext(ctx, "Lookup entity created",
		applog.FieldOperation, applog.OpResolve,
		applog.FieldKind, kind.String(),
		applog.FieldID, id,
		applog.FieldName, name)
}
