package storage

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// DeliveryType selects how the blob CDN serves a file.
type DeliveryType string

const (
	DeliveryImage DeliveryType = "image"
	DeliveryRaw   DeliveryType = "raw"
)

// deliveryByExtension lists extensions that are not served as images.
var deliveryByExtension = map[string]DeliveryType{
	".pdf": DeliveryRaw,
}

var deliveryPaths = map[DeliveryType]string{
	DeliveryImage: "image/upload",
	DeliveryRaw:   "raw/upload",
}

// DeliveryFor returns the delivery type for a public id based on its extension.
func DeliveryFor(publicID string) DeliveryType {
	if delivery, ok := deliveryByExtension[strings.ToLower(path.Ext(publicID))]; ok {
		return delivery
	}
	return DeliveryImage
}

// DeliveryPath returns the URL path segment for a delivery type.
func DeliveryPath(delivery DeliveryType) string {
	return deliveryPaths[delivery]
}

// URLResolver turns stored public ids into retrievable URLs.
type URLResolver struct {
	baseURL string
}

// NewURLResolver builds a resolver rooted at baseURL, e.g. "https://host/media".
func NewURLResolver(baseURL string) *URLResolver {
	return &URLResolver{baseURL: strings.TrimRight(baseURL, "/")}
}

// Resolve builds <base>/<delivery path>/<public id>.
func (r *URLResolver) Resolve(publicID string) (string, error) {
	if !safePublicID(publicID) {
		return "", fmt.Errorf("resolve %q: %w", publicID, ErrInvalidPublicID)
	}
	base, err := url.Parse(r.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("base url %q is not absolute", r.baseURL)
	}
	return base.JoinPath(DeliveryPath(DeliveryFor(publicID)), publicID).String(), nil
}
