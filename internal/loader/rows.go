package loader

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jaisveenkaur/insiteforge/internal/models"
)

// readRows resolves a handle into generic rows. Files may be JSON (an
// array of objects or a single object) or CSV with a header line.
func readRows(handle models.SourceHandle, baseDir string) ([]map[string]interface{}, string, error) {
	if len(handle.Rows) > 0 {
		return normalizeRows(handle.Rows), "inline", nil
	}

	path := handle.Path
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read source file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var rows []map[string]interface{}
		if err := json.Unmarshal(data, &rows); err != nil {
			// Tolerate a single object instead of an array.
			var single map[string]interface{}
			if err2 := json.Unmarshal(data, &single); err2 != nil {
				return nil, path, fmt.Errorf("parse json: %w", err)
			}
			rows = []map[string]interface{}{single}
		}
		return normalizeRows(rows), path, nil
	case ".csv":
		rows, err := parseCSV(data)
		if err != nil {
			return nil, path, err
		}
		return rows, path, nil
	default:
		return nil, path, fmt.Errorf("unsupported file format %q", filepath.Ext(path))
	}
}

func parseCSV(data []byte) ([]map[string]interface{}, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	for i, col := range header {
		header[i] = strings.ToLower(strings.TrimSpace(col))
	}
	rows := make([]map[string]interface{}, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]interface{}, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// normalizeRows lowercases keys so column lookup is case-insensitive.
// Extra columns are kept in the row map and simply never read.
func normalizeRows(rows []map[string]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		norm := make(map[string]interface{}, len(row))
		for k, v := range row {
			norm[strings.ToLower(strings.TrimSpace(k))] = v
		}
		out = append(out, norm)
	}
	return out
}

// asFloat coerces a cell to float64. Percent signs and surrounding
// whitespace are tolerated; empty and unparseable values return ok=false.
func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case int:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	text := strings.TrimSpace(strings.ReplaceAll(fmt.Sprintf("%v", v), "%", ""))
	if text == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

// asStringList accepts JSON arrays, delimited strings ("a;b" or "a,b"),
// or a single scalar.
func asStringList(v interface{}) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return x
	}
	text := asString(v)
	if text == "" {
		return nil
	}
	sep := ","
	if strings.Contains(text, ";") {
		sep = ";"
	}
	var out []string
	for _, part := range strings.Split(text, sep) {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asTime(v interface{}) *time.Time {
	text := asString(v)
	if text == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, text); err == nil {
			return &t
		}
	}
	return nil
}

func coerceCatalog(rows []map[string]interface{}, status models.SourceStatus) ([]models.CatalogItem, models.SourceStatus) {
	items := make([]models.CatalogItem, 0, len(rows))
	for _, row := range rows {
		sku := asString(row["sku"])
		if sku == "" {
			status.RowsDropped++
			continue
		}
		item := models.CatalogItem{
			SKU:      sku,
			Category: asString(row["category"]),
			Features: asStringList(row["features"]),
		}
		if v, ok := row["price"]; ok && asString(v) != "" {
			price, ok := asFloat(v)
			if !ok || price < 0 {
				status.RowsDropped++
				continue
			}
			item.Price = price
		}
		if v, ok := row["stock"]; ok && asString(v) != "" {
			stock, ok := asFloat(v)
			if !ok || stock < 0 {
				status.RowsDropped++
				continue
			}
			item.Stock = int(stock)
		}
		items = append(items, item)
		status.RowsLoaded++
	}
	return items, status
}

func coerceReviews(rows []map[string]interface{}, status models.SourceStatus) ([]models.Review, models.SourceStatus) {
	reviews := make([]models.Review, 0, len(rows))
	for _, row := range rows {
		rating, ok := asFloat(row["rating"])
		if !ok || rating < 1 || rating > 5 {
			status.RowsDropped++
			continue
		}
		reviews = append(reviews, models.Review{
			SKU:       asString(row["sku"]),
			Rating:    rating,
			Text:      asString(row["text"]),
			Themes:    asStringList(row["themes"]),
			Timestamp: asTime(row["timestamp"]),
		})
		status.RowsLoaded++
	}
	return reviews, status
}

func coercePricing(rows []map[string]interface{}, status models.SourceStatus) ([]models.PriceObservation, models.SourceStatus) {
	obs := make([]models.PriceObservation, 0, len(rows))
	for _, row := range rows {
		ourPrice, ok1 := asFloat(row["our_price"])
		compPrice, ok2 := asFloat(row["competitor_price"])
		if !ok1 || !ok2 {
			status.RowsDropped++
			continue
		}
		obs = append(obs, models.PriceObservation{
			SKU:             asString(row["sku"]),
			OurPrice:        ourPrice,
			Competitor:      asString(row["competitor"]),
			CompetitorPrice: compPrice,
			Tier:            strings.ToLower(asString(row["tier"])),
		})
		status.RowsLoaded++
	}
	return obs, status
}

func coerceCompetitors(rows []map[string]interface{}, status models.SourceStatus) ([]models.CompetitorListing, models.SourceStatus) {
	listings := make([]models.CompetitorListing, 0, len(rows))
	for _, row := range rows {
		competitor := asString(row["competitor"])
		if competitor == "" {
			status.RowsDropped++
			continue
		}
		listing := models.CompetitorListing{
			Competitor:    competitor,
			CompetitorSKU: asString(row["competitor_sku"]),
			Category:      asString(row["category"]),
			Tier:          strings.ToLower(asString(row["tier"])),
			Features:      asStringList(row["features"]),
		}
		if v, ok := row["price"]; ok && asString(v) != "" {
			price, ok := asFloat(v)
			if !ok {
				status.RowsDropped++
				continue
			}
			listing.Price = price
		}
		listings = append(listings, listing)
		status.RowsLoaded++
	}
	return listings, status
}

func coercePerformance(rows []map[string]interface{}, status models.SourceStatus) ([]models.PerformanceSignal, models.SourceStatus) {
	signals := make([]models.PerformanceSignal, 0, len(rows))
	for _, row := range rows {
		views, ok := asFloat(row["views"])
		if !ok || views < 0 {
			status.RowsDropped++
			continue
		}
		sig := models.PerformanceSignal{
			SKU:   asString(row["sku"]),
			Views: views,
		}
		// conversions/returns are optional; absent values stay zero
		if v, ok := row["conversions"]; ok {
			if f, ok := asFloat(v); ok {
				sig.Conversions = f
			}
		}
		if v, ok := row["returns"]; ok {
			if f, ok := asFloat(v); ok {
				sig.Returns = f
			}
		}
		signals = append(signals, sig)
		status.RowsLoaded++
	}
	return signals, status
}
