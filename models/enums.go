package models

import (
	"errors"
	"fmt"
)

type VendorType string

const (
	VendorTypeGeneric           VendorType = "generic"
	VendorTypeHexnode           VendorType = "hexnode"
	VendorTypeAdobe             VendorType = "adobe"
	VendorTypeIntegricom        VendorType = "integricom"
	VendorTypeIntegricomSupport VendorType = "integricom_support"
)

func ParseVendorType(raw string) (VendorType, error) {
	switch VendorType(raw) {
	case VendorTypeGeneric, VendorTypeHexnode, VendorTypeAdobe, VendorTypeIntegricom, VendorTypeIntegricomSupport:
		return VendorType(raw), nil
	}
	return "", fmt.Errorf(
		"unsupported vendor_type %q; use 'generic', 'hexnode', 'adobe', 'integricom', or 'integricom_support'", raw)
}

// AdjustmentLicense is the label of the synthetic reconciliation line for
// this vendor, or "" when the vendor never reconciles.
func (t VendorType) AdjustmentLicense(hexnodeLicense, adobeLicense, integricomLicense, supportLicense string) string {
	switch t {
	case VendorTypeHexnode:
		return hexnodeLicense
	case VendorTypeAdobe:
		return adobeLicense
	case VendorTypeIntegricom:
		return integricomLicense
	case VendorTypeIntegricomSupport:
		return supportLicense
	}
	return ""
}

type AllocationType string

const (
	AllocationTypePerUser          AllocationType = "Per User"
	AllocationTypeFixedTemplate    AllocationType = "Fixed Branch Item"
	AllocationTypeBranchTethered   AllocationType = "Branch Tethered"
	AllocationTypeForcedHomeOffice AllocationType = "Forced Home Office"
	AllocationTypeInvoiceDelta     AllocationType = "Invoice Delta"
)

type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"

	// ConfidenceUser marks a branch set by a human reviewer; it is never
	// produced by the scorer itself.
	ConfidenceUser ConfidenceLevel = "user"
)

func ParseConfidenceLevel(raw string) (ConfidenceLevel, error) {
	switch ConfidenceLevel(raw) {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh, ConfidenceUser:
		return ConfidenceLevel(raw), nil
	}
	return "", errors.New("invalid confidence level")
}

// Rank orders scorer confidence for threshold checks. ConfidenceUser
// outranks everything: a human answer is never sent back for review.
func (c ConfidenceLevel) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	case ConfidenceUser:
		return 4
	}
	return 0
}
