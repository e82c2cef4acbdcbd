// Package category maps vendor category paths onto the target catalog tree
// using a workbook with one lookup sheet per vendor.
package category

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/xuri/excelize/v2"
)

var (
	sourceLabels = [4]string{"대분류", "중분류", "소분류", "세분류"}
	targetLabels = [4]string{"등록카테고리1", "등록카테고리2", "등록카테고리3", "카탈로그코드"}
)

type row struct {
	source  [4]string
	mapping models.CategoryMapping
}

// Mapper loads sheets lazily and caches them for the process lifetime.
type Mapper struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	sheets map[string][]row
}

func NewMapper(path string, logger *slog.Logger) *Mapper {
	return &Mapper{
		path:   path,
		logger: logger.With("component", "category"),
		sheets: make(map[string][]row),
	}
}

// Lookup returns the first row whose source tuple equals categories. The 4th
// level is compared only when categories has one. No match is an empty
// mapping, not an error.
func (m *Mapper) Lookup(sheet string, categories []string) (models.CategoryMapping, error) {
	if len(categories) < 3 {
		return models.CategoryMapping{}, nil
	}

	rows, err := m.rows(sheet)
	if err != nil {
		return models.CategoryMapping{}, err
	}

	var want [4]string
	for i := 0; i < len(categories) && i < 4; i++ {
		want[i] = strings.TrimSpace(categories[i])
	}
	withFourth := len(categories) >= 4

	for _, r := range rows {
		if r.source[0] != want[0] || r.source[1] != want[1] || r.source[2] != want[2] {
			continue
		}
		if withFourth && r.source[3] != want[3] {
			continue
		}
		return r.mapping, nil
	}

	m.logger.Debug("no category mapping", "sheet", sheet, "categories", strings.Join(categories, " > "))
	return models.CategoryMapping{}, nil
}

func (m *Mapper) rows(sheet string) ([]row, error) {
	m.mu.RLock()
	rows, ok := m.sheets[sheet]
	m.mu.RUnlock()
	if ok {
		return rows, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rows, ok := m.sheets[sheet]; ok {
		return rows, nil
	}

	rows, err := m.load(sheet)
	if err != nil {
		return nil, err
	}
	m.sheets[sheet] = rows
	m.logger.Info("loaded category sheet", "sheet", sheet, "rows", len(rows))
	return rows, nil
}

func (m *Mapper) load(sheet string) ([]row, error) {
	f, err := excelize.OpenFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open category workbook: %w", err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: sheet %q missing", models.ErrCategoryNotFound, sheet)
	}

	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	header, src, dst := findHeader(cells)
	if header < 0 {
		return nil, fmt.Errorf("%w: sheet %q has no header row", models.ErrCategoryNotFound, sheet)
	}

	var rows []row
	for _, values := range cells[header+1:] {
		r := row{}
		for i := range src {
			r.source[i] = cell(values, src[i])
		}
		if r.source[0] == "" {
			continue
		}
		r.mapping = models.CategoryMapping{
			TargetCategory1: cell(values, dst[0]),
			TargetCategory2: cell(values, dst[1]),
			TargetCategory3: cell(values, dst[2]),
			CatalogCode:     cell(values, dst[3]),
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// findHeader returns the first row carrying all four source labels, with the
// column index of every source and target label.
func findHeader(cells [][]string) (int, [4]int, [4]int) {
	for i, r := range cells {
		src, ok := columns(r, sourceLabels)
		if !ok {
			continue
		}
		dst, _ := columns(r, targetLabels)
		return i, src, dst
	}
	return -1, [4]int{}, [4]int{}
}

func columns(r []string, labels [4]string) ([4]int, bool) {
	idx := [4]int{-1, -1, -1, -1}
	found := 0
	for col, v := range r {
		v = strings.TrimSpace(v)
		for i, label := range labels {
			if v == label && idx[i] < 0 {
				idx[i] = col
				found++
			}
		}
	}
	return idx, found == len(labels)
}

func cell(r []string, col int) string {
	if col < 0 || col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}
