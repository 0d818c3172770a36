package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/erazemk/gradilisce/internal/model"
)

// InventoryFilter narrows ListSiteInventory. Zero values match everything.
type InventoryFilter struct {
	ProjectID     int64
	MaterialID    int64
	InventoryType model.InventoryType
}

// ListSiteInventory lists inventory rows.
func (c *Client) ListSiteInventory(ctx context.Context, f InventoryFilter) ([]model.InventoryItem, error) {
	q := url.Values{}
	if f.ProjectID > 0 {
		q.Set("project_id", strconv.FormatInt(f.ProjectID, 10))
	}
	if f.MaterialID > 0 {
		q.Set("material_id", strconv.FormatInt(f.MaterialID, 10))
	}
	if f.InventoryType != 0 {
		q.Set("inventory_type", strconv.Itoa(int(f.InventoryType)))
	}

	data, err := c.doJSON(ctx, http.MethodGet, "/api/site-inventory", q, nil)
	if err != nil {
		return nil, err
	}
	return fillIDs(data,
		func(it *model.InventoryItem, id int64) { it.ID = id },
		func(it *model.InventoryItem) int64 { return it.ID },
	)
}

// Vendor is a builder or supplier as the client sees it.
type Vendor struct {
	ID          int64
	CompanyName string
	ContactName string
	Phone       string
	Email       string
}

// ListVendors lists vendors, accepting every field spelling servers send.
func (c *Client) ListVendors(ctx context.Context) ([]Vendor, error) {
	data, err := c.doJSON(ctx, http.MethodGet, "/api/vendors", nil, nil)
	if err != nil {
		return nil, err
	}

	var vendors []Vendor
	for _, v := range gjson.ParseBytes(data).Array() {
		vendors = append(vendors, Vendor{
			ID:          looseID(v),
			CompanyName: firstString(v, "company_name", "company_Name", "companyName"),
			ContactName: firstString(v, "contact_name", "contactName"),
			Phone:       v.Get("phone").String(),
			Email:       v.Get("email").String(),
		})
	}
	return vendors, nil
}

// ListUserRoles lists the roles users can be given.
func (c *Client) ListUserRoles(ctx context.Context) ([]model.RoleInfo, error) {
	data, err := c.doJSON(ctx, http.MethodGet, "/api/builder/user-roles", nil, nil)
	if err != nil {
		return nil, err
	}

	var roles []model.RoleInfo
	for _, r := range gjson.ParseBytes(data).Array() {
		roles = append(roles, model.RoleInfo{
			Role:        firstString(r, "role", "name"),
			Description: r.Get("description").String(),
		})
	}
	return roles, nil
}
