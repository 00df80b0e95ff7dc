package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/safar/pickle-storefront/internal/models"
	"github.com/shopspring/decimal"
)

type ProductPage struct {
	Items      []models.Product `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

type ProductQuery struct {
	Page     int
	PageSize int
	Category string
}

// rawWeight accepts either a bare label ("500g") or an object carrying a
// label and price under any of the names the backend has used.
type rawWeight struct {
	Label string
	Price *decimal.Decimal
}

func (w *rawWeight) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &w.Label)
	}

	var obj struct {
		Label  string           `json:"label"`
		Weight string           `json:"weight"`
		Size   string           `json:"size"`
		Price  *decimal.Decimal `json:"price"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	w.Price = obj.Price
	switch {
	case obj.Label != "":
		w.Label = obj.Label
	case obj.Weight != "":
		w.Label = obj.Weight
	default:
		w.Label = obj.Size
	}
	return nil
}

type rawProduct struct {
	MongoID       string          `json:"_id"`
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Price         decimal.Decimal `json:"price"`
	Weights       []rawWeight     `json:"weights"`
	WeightOptions []rawWeight     `json:"weightOptions"`
	Image         string          `json:"image"`
	ImageURL      string          `json:"imageUrl"`
	Images        []string        `json:"images"`
	InStock       *bool           `json:"inStock"`
	Stock         *int            `json:"stock"`
}

// NormalizeProduct maps every product shape the backend emits onto the
// canonical models.Product.
func NormalizeProduct(raw json.RawMessage) (models.Product, error) {
	var p rawProduct
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.Product{}, fmt.Errorf("decode product: %w", err)
	}

	product := models.Product{
		ID:          p.MongoID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
		InStock:     true,
	}
	if product.ID == "" {
		product.ID = p.ID
	}
	if product.ID == "" {
		return models.Product{}, fmt.Errorf("decode product %q: missing id", p.Name)
	}

	if product.ImageURL == "" {
		product.ImageURL = p.Image
	}
	if product.ImageURL == "" && len(p.Images) > 0 {
		product.ImageURL = p.Images[0]
	}

	switch {
	case p.InStock != nil:
		product.InStock = *p.InStock
	case p.Stock != nil:
		product.InStock = *p.Stock > 0
	}

	weights := p.WeightOptions
	if len(weights) == 0 {
		weights = p.Weights
	}
	for _, w := range weights {
		if w.Label == "" {
			continue
		}
		price := product.Price
		if w.Price != nil {
			price = *w.Price
		}
		product.WeightOptions = append(product.WeightOptions, models.WeightOption{Label: w.Label, Price: price})
	}

	if product.Price.IsZero() && len(product.WeightOptions) > 0 {
		product.Price = product.WeightOptions[0].Price
	}

	return product, nil
}

func normalizeAll(raws []json.RawMessage) ([]models.Product, error) {
	products := make([]models.Product, 0, len(raws))
	for _, raw := range raws {
		p, err := NormalizeProduct(raw)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (c *Client) ListProducts(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > 100 {
		q.PageSize = 20
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.PageSize))
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	path := "/products?" + params.Encode()

	body, err := withRetry(ctx, c.maxRetries, func() (json.RawMessage, error) {
		var raw json.RawMessage
		if err := c.do(ctx, http.MethodGet, path, nil, &raw, requestOptions{}); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	// The backend answers either a bare array or a paged envelope.
	var envelope struct {
		Products   []json.RawMessage `json:"products"`
		Total      int64             `json:"total"`
		Page       int               `json:"page"`
		TotalPages int               `json:"totalPages"`
	}
	var bare []json.RawMessage
	if err := json.Unmarshal(body, &bare); err == nil {
		envelope.Products = bare
		envelope.Total = int64(len(bare))
	} else if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("list products: decode: %w", err)
	}

	products, err := normalizeAll(envelope.Products)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	page := &ProductPage{
		Items:      products,
		Total:      envelope.Total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: envelope.TotalPages,
	}
	if envelope.Page > 0 {
		page.Page = envelope.Page
	}
	if page.TotalPages == 0 {
		page.TotalPages = int(page.Total) / q.PageSize
		if int(page.Total)%q.PageSize > 0 {
			page.TotalPages++
		}
	}
	return page, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	path := "/products/" + url.PathEscape(id)

	body, err := withRetry(ctx, c.maxRetries, func() (json.RawMessage, error) {
		var raw json.RawMessage
		if err := c.do(ctx, http.MethodGet, path, nil, &raw, requestOptions{}); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}

	var envelope struct {
		Product json.RawMessage `json:"product"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Product) > 0 {
		body = envelope.Product
	}

	product, err := NormalizeProduct(body)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return &product, nil
}
