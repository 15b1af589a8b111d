package domain

import (
	"cmp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	// DefaultPageLimit: размер страницы по умолчанию.
	DefaultPageLimit = 10
	// MaxPageLimit: верхняя граница размера страницы.
	MaxPageLimit = 100
)

// SortOrder: направление сортировки.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// PageRequest: параметры постраничной выборки.
type PageRequest struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder SortOrder
}

// Normalize подставляет значения по умолчанию и проверяет границы.
// Limit больше MaxPageLimit обрезается, нулевые значения заменяются дефолтами.
func (r PageRequest) Normalize(defaultSort string, defaultOrder SortOrder) (PageRequest, error) {
	if r.Page < 0 {
		return r, Validationf("page must be a positive integer")
	}
	if r.Limit < 0 {
		return r, Validationf("limit must be a positive integer")
	}
	if r.Page == 0 {
		r.Page = 1
	}
	if r.Limit == 0 {
		r.Limit = DefaultPageLimit
	}
	if r.Limit > MaxPageLimit {
		r.Limit = MaxPageLimit
	}
	if r.SortBy == "" {
		r.SortBy = defaultSort
		if r.SortOrder == "" {
			r.SortOrder = defaultOrder
		}
	}
	switch SortOrder(strings.ToLower(string(r.SortOrder))) {
	case "", SortAsc:
		r.SortOrder = SortAsc
	case SortDesc:
		r.SortOrder = SortDesc
	default:
		return r, Validationf("sortOrder must be one of: asc, desc")
	}
	return r, nil
}

// Offset возвращает смещение первой записи страницы.
func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.Limit
}

// Page: страница результатов.
type Page[T any] struct {
	Items      []T
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// NewPage собирает страницу; TotalPages = ceil(total/limit).
func NewPage[T any](items []T, total int, req PageRequest) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if req.Limit > 0 {
		pages = (total + req.Limit - 1) / req.Limit
	}
	return Page[T]{Items: items, Total: total, Page: req.Page, Limit: req.Limit, TotalPages: pages}
}

// Paginate вырезает страницу из уже отфильтрованного и отсортированного среза.
func Paginate[T any](items []T, req PageRequest) Page[T] {
	total := len(items)
	start := min(req.Offset(), total)
	end := min(start+req.Limit, total)
	return NewPage(slices.Clone(items[start:end]), total, req)
}

// MapPage преобразует элементы страницы, сохраняя метаданные.
func MapPage[T, R any](p Page[T], fn func(T) R) Page[R] {
	out := make([]R, 0, len(p.Items))
	for _, item := range p.Items {
		out = append(out, fn(item))
	}
	return Page[R]{Items: out, Total: p.Total, Page: p.Page, Limit: p.Limit, TotalPages: p.TotalPages}
}

// SortKeys сопоставляет имя поля с функцией сравнения.
type SortKeys[T any] map[string]func(a, b T) int

// Sort стабильно сортирует срез по ключу из запроса. Неизвестный ключ: ошибка валидации.
func (k SortKeys[T]) Sort(items []T, req PageRequest) error {
	less, ok := k[req.SortBy]
	if !ok {
		return InvalidSortKey(req.SortBy, k.Names())
	}
	slices.SortStableFunc(items, func(a, b T) int {
		if req.SortOrder == SortDesc {
			return less(b, a)
		}
		return less(a, b)
	})
	return nil
}

// Has проверяет наличие ключа.
func (k SortKeys[T]) Has(key string) bool {
	_, ok := k[key]
	return ok
}

// Names возвращает отсортированный список допустимых ключей.
func (k SortKeys[T]) Names() []string {
	names := make([]string, 0, len(k))
	for name := range k {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// InvalidSortKey формирует ошибку для неизвестного поля сортировки.
func InvalidSortKey(key string, allowed []string) error {
	return Validationf("Invalid sort field: %s. Allowed: %s", key, strings.Join(allowed, ", "))
}

// Collator не потокобезопасен, поэтому держим пул.
var collators = sync.Pool{
	New: func() any {
		return collate.New(language.English, collate.IgnoreCase, collate.Loose, collate.Numeric)
	},
}

// CompareText сравнивает строки с учётом правил английской локали; цифры
// сравниваются как числа, поэтому ORD-2026-999 идёт раньше ORD-2026-1000.
func CompareText(a, b string) int {
	c := collators.Get().(*collate.Collator)
	defer collators.Put(c)
	return c.CompareString(a, b)
}

func compareInt[T cmp.Ordered](a, b T) int {
	return cmp.Compare(a, b)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(strings.TrimSpace(needle)))
}
