package formhydrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
)

// FormIDByKey resolves a form key to its numeric id via the id-lookup
// endpoint.
func (c *Client) FormIDByKey(ctx context.Context, key string, opts ...CallOption) (int64, error) {
	if strings.TrimSpace(key) == "" {
		return 0, &ClientError{
			Type:    ErrorTypeInvalidArgument,
			Message: "form key must not be empty",
		}
	}

	path := fmt.Sprintf(c.endpoints.IDLookup, url.PathEscape(key))
	body, err := c.getJSON(ctx, RouteIDLookup, path, applyCallOptions(opts))
	if err != nil {
		return 0, err
	}

	var payload struct {
		ID *looseInt `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.ID == nil {
		return 0, &ClientError{
			Type:    ErrorTypeBadResponseShape,
			Message: "id-lookup response lacks a numeric id",
			Path:    path,
			Cause:   err,
		}
	}

	return int64(*payload.ID), nil
}

// FormMetadata fetches and validates the metadata object for a form id.
func (c *Client) FormMetadata(ctx context.Context, id int64, opts ...CallOption) (*FormMeta, error) {
	if id <= 0 {
		return nil, &ClientError{
			Type:    ErrorTypeInvalidArgument,
			Message: fmt.Sprintf("form id must be a positive number, got %d", id),
		}
	}

	path := fmt.Sprintf(c.endpoints.Metadata, id)
	body, err := c.getJSON(ctx, RouteMetadata, path, applyCallOptions(opts))
	if err != nil {
		return nil, err
	}

	return parseFormMeta(body, path)
}

func parseFormMeta(body json.RawMessage, path string) (*FormMeta, error) {
	var payload struct {
		ID       *looseInt              `json:"id"`
		Key      *string                `json:"form_key"`
		AltKey   *string                `json:"key"`
		Name     string                 `json:"name"`
		Settings map[string]interface{} `json:"settings"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeBadResponseShape,
			Message: "metadata response is not a JSON object",
			Path:    path,
			Cause:   err,
		}
	}

	// Formidable's v2 API uses form_key; the book's companion plugin uses key.
	key := payload.Key
	if key == nil {
		key = payload.AltKey
	}

	if payload.ID == nil || key == nil {
		return nil, &ClientError{
			Type:    ErrorTypeBadResponseShape,
			Message: "metadata response lacks a numeric id or string key",
			Path:    path,
		}
	}

	return &FormMeta{
		ID:       int64(*payload.ID),
		Key:      *key,
		Name:     payload.Name,
		Settings: payload.Settings,
		Raw:      body,
	}, nil
}

// FormFields fetches the field definitions for a form id. Only array-ness
// is validated; items are returned raw.
func (c *Client) FormFields(ctx context.Context, id int64, opts ...CallOption) ([]json.RawMessage, error) {
	if id <= 0 {
		return nil, &ClientError{
			Type:    ErrorTypeInvalidArgument,
			Message: fmt.Sprintf("form id must be a positive number, got %d", id),
		}
	}

	path := fmt.Sprintf(c.endpoints.Fields, id)
	body, err := c.getJSON(ctx, RouteFields, path, applyCallOptions(opts))
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &ClientError{
			Type:    ErrorTypeBadResponseShape,
			Message: "fields response is not a JSON array",
			Path:    path,
		}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeBadResponseShape,
			Message: "fields response is not a JSON array",
			Path:    path,
			Cause:   err,
		}
	}

	return items, nil
}

// Hydrate resolves the form id for key, then fetches metadata and fields
// concurrently and joins on both. It never partially resolves: on any
// failure the whole call fails after internal recovery is exhausted.
func (c *Client) Hydrate(ctx context.Context, key string, opts ...CallOption) (*HydratedForm, error) {
	id, err := c.FormIDByKey(ctx, key, opts...)
	if err != nil {
		return nil, err
	}

	var (
		meta   *FormMeta
		fields []json.RawMessage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := c.FormMetadata(gctx, id, opts...)
		if err != nil {
			return err
		}
		meta = m
		return nil
	})
	g.Go(func() error {
		f, err := c.FormFields(gctx, id, opts...)
		if err != nil {
			return err
		}
		fields = f
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &HydratedForm{
		ID:       id,
		Metadata: meta,
		Fields:   NormalizeFields(fields),
	}, nil
}

// Preload warms the cache for key exactly like Hydrate but discards the
// payload, returning only the resolved id.
func (c *Client) Preload(ctx context.Context, key string, opts ...CallOption) (int64, error) {
	form, err := c.Hydrate(ctx, key, opts...)
	if err != nil {
		return 0, err
	}
	return form.ID, nil
}

// InvalidateByFormID removes the cached metadata and fields entries for id.
func (c *Client) InvalidateByFormID(id int64) {
	if c.cache == nil || id <= 0 {
		return
	}
	c.cache.Delete(fmt.Sprintf(c.endpoints.Metadata, id))
	c.cache.Delete(fmt.Sprintf(c.endpoints.Fields, id))
}

// InvalidateByFormKey removes the id-lookup entry for key and, best effort,
// the derived metadata and fields entries. Resolving the id to find them
// may itself fail or race a server-side key reassignment; that failure is
// swallowed, since dropping the key mapping alone already forces a fresh
// lookup.
func (c *Client) InvalidateByFormKey(ctx context.Context, key string) {
	if c.cache == nil || strings.TrimSpace(key) == "" {
		return
	}

	lookupPath := fmt.Sprintf(c.endpoints.IDLookup, url.PathEscape(key))
	c.cache.Delete(lookupPath)

	id, err := c.FormIDByKey(ctx, key, WithCacheBypass())
	if err != nil {
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("Invalidation id re-resolve failed", "key", key, "error", err)
		}
		return
	}

	c.InvalidateByFormID(id)
}

// NormalizeFields converts raw field objects into the canonical Field
// shape. The raw payload is preserved on each Field; items that are not
// objects keep only their Raw bytes.
func NormalizeFields(items []json.RawMessage) []Field {
	fields := make([]Field, 0, len(items))

	for _, raw := range items {
		var payload struct {
			ID       looseInt    `json:"id"`
			Key      string      `json:"field_key"`
			AltKey   string      `json:"key"`
			Type     string      `json:"type"`
			Name     string      `json:"name"`
			Required looseBool   `json:"required"`
			Default  interface{} `json:"default_value"`
			Options  interface{} `json:"options"`
			Config   interface{} `json:"field_options"`
		}

		field := Field{Raw: raw}
		if err := json.Unmarshal(raw, &payload); err == nil {
			field.ID = int64(payload.ID)
			field.Key = payload.Key
			if field.Key == "" {
				field.Key = payload.AltKey
			}
			field.Type = payload.Type
			field.Name = payload.Name
			field.Required = bool(payload.Required)
			field.Default = payload.Default
			field.Options = payload.Options
			field.Config = payload.Config
		}

		fields = append(fields, field)
	}

	return fields
}
