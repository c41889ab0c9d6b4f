package complaint

import "sort"

type ComplaintType string

const (
	TypeIPD      ComplaintType = "ipd"
	TypeInternal ComplaintType = "internal"
)

type DepartmentKey string

// IPD (inpatient) departments.
const (
	DeptBilling      DepartmentKey = "billing"
	DeptHousekeeping DepartmentKey = "housekeeping"
	DeptMaintenance  DepartmentKey = "maintenance"
	DeptNursing      DepartmentKey = "nursing"
	DeptDiet         DepartmentKey = "diet"
	DeptSecurity     DepartmentKey = "security"
	DeptPharmacy     DepartmentKey = "pharmacy"
	DeptLaboratory   DepartmentKey = "laboratory"
	DeptRadiology    DepartmentKey = "radiology"
	DeptFrontOffice  DepartmentKey = "front_office"
	DeptDoctor       DepartmentKey = "doctor"
)

// Internal (employee) departments. Maintenance, housekeeping and security are
// shared with the IPD domain.
const (
	DeptHR             DepartmentKey = "hr"
	DeptAccounts       DepartmentKey = "accounts"
	DeptIT             DepartmentKey = "it"
	DeptAdministration DepartmentKey = "administration"
	DeptBiomedical     DepartmentKey = "biomedical"
	DeptPurchase       DepartmentKey = "purchase"
)

var departmentDomains = map[ComplaintType]map[DepartmentKey]bool{
	TypeIPD: {
		DeptBilling:      true,
		DeptHousekeeping: true,
		DeptMaintenance:  true,
		DeptNursing:      true,
		DeptDiet:         true,
		DeptSecurity:     true,
		DeptPharmacy:     true,
		DeptLaboratory:   true,
		DeptRadiology:    true,
		DeptFrontOffice:  true,
		DeptDoctor:       true,
	},
	TypeInternal: {
		DeptHR:             true,
		DeptAccounts:       true,
		DeptIT:             true,
		DeptMaintenance:    true,
		DeptHousekeeping:   true,
		DeptAdministration: true,
		DeptSecurity:       true,
		DeptBiomedical:     true,
		DeptPurchase:       true,
	},
}

func (t ComplaintType) Valid() bool {
	_, ok := departmentDomains[t]
	return ok
}

// HasDepartment reports whether k belongs to the department domain of t.
func (t ComplaintType) HasDepartment(k DepartmentKey) bool {
	return departmentDomains[t][k]
}

// Departments lists the department domain of t in sorted order.
func (t ComplaintType) Departments() []DepartmentKey {
	keys := make([]DepartmentKey, 0, len(departmentDomains[t]))
	for k := range departmentDomains[t] {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// KnownDepartment reports whether key belongs to any complaint type's
// department domain.
func KnownDepartment(key string) bool {
	for _, domain := range departmentDomains {
		if domain[DepartmentKey(key)] {
			return true
		}
	}
	return false
}

func sortedKeys(m map[DepartmentKey]*DepartmentConcern) []DepartmentKey {
	keys := make([]DepartmentKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
