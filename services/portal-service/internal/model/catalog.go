package model

type Officer struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	Specializations []string `json:"specializations"`
	IsActive        bool     `json:"isActive"`
}

type ServicePackage struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Price           Amount   `json:"price"`
	Features        []string `json:"features"`
	DurationMinutes int      `json:"durationMinutes"`
}

// DefaultServicePackages seed an empty catalog.
func DefaultServicePackages() []ServicePackage {
	return []ServicePackage{
		{
			Name:            "Basic Home Audit",
			Description:     "Walkthrough of doors, windows and entry points with a written findings report.",
			Price:           MustAmount("225.00"),
			Features:        []string{"Entry point inspection", "Lock and hardware review", "Written report"},
			DurationMinutes: 90,
		},
		{
			Name:            "Comprehensive Audit",
			Description:     "Full interior and exterior assessment including lighting, cameras and alarm coverage.",
			Price:           MustAmount("395.00"),
			Features:        []string{"Everything in Basic", "Camera and alarm coverage map", "Lighting assessment", "Prioritised remediation plan"},
			DurationMinutes: 180,
		},
		{
			Name:            "Title Protection Bundle",
			Description:     "Comprehensive audit plus home title monitoring enrollment.",
			Price:           MustAmount("495.00"),
			Features:        []string{"Everything in Comprehensive", "Home title monitoring", "Fraud alert setup"},
			DurationMinutes: 180,
		},
	}
}
