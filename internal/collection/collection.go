// Package collection builds the immutable description of one billable
// component of a resource.
package collection

import "github.com/smallbiznis/waiter/internal/event"

// Collection identifies what a subscription bills for. It is a plain value,
// every field is copied.
type Collection struct {
	ProductName    string
	Service        string
	RegionID       string
	ResourceID     string
	ResourceName   string
	ResourceType   string
	ResourceStatus string
	ResourceVolume int64
	UserID         string
	ProjectID      string
}

// ProductRef names the catalog product priced by an extension.
type ProductRef struct {
	ProductName string
	Service     string
}

// Build is pure: equal inputs give equal collections.
func Build(ref ProductRef, regionID string, res event.Resource) Collection {
	return Collection{
		ProductName:    ref.ProductName,
		Service:        ref.Service,
		RegionID:       regionID,
		ResourceID:     res.ID,
		ResourceName:   res.Name,
		ResourceType:   res.Type,
		ResourceStatus: res.Status,
		ResourceVolume: res.Volume,
		UserID:         res.UserID,
		ProjectID:      res.ProjectID,
	}
}
