package allocation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/directory"
)

func sampleRecords() []allocation.Allocation {
	return []allocation.Allocation{
		{
			ID: "1", RootID: "A0001", Item: "Blenze Pro PDB", Purpose: "Project Sunrise",
			Role:      directory.RoleAdmin,
			Employees: []allocation.Share{{EmpCode: "RM1", Name: "Ravi Kumar", Qty: 10}},
		},
		{
			ID: "2", RootID: "A0001", RMID: "RM0001", Item: "Blenze Pro PDB", Purpose: "Project Sunrise",
			Role:      directory.RoleRegionalManager,
			Employees: []allocation.Share{{EmpCode: "BM1", Name: "Bina Shah", Qty: 4}},
		},
		{
			ID: "3", RootID: "A0002", Item: "Evo PDB", Purpose: "Team Bifurcation",
			Role:      directory.RoleAdmin,
			Employees: []allocation.Share{{EmpCode: "RM2", Name: "Rohit Das", Qty: 7}},
		},
	}
}

func ids(records []allocation.Allocation) []string {
	out := make([]string, len(records))
	for i, a := range records {
		out[i] = a.ID
	}
	return out
}

func TestFilter_Apply(t *testing.T) {
	records := sampleRecords()

	cases := map[string]struct {
		filter allocation.Filter
		want   []string
	}{
		"zero filter keeps all":      {allocation.Filter{}, []string{"1", "2", "3"}},
		"query on employee name":     {allocation.Filter{Query: "bina"}, []string{"2"}},
		"query on rm id":             {allocation.Filter{Query: "rm0001"}, []string{"2"}},
		"query on item":              {allocation.Filter{Query: "EVO"}, []string{"3"}},
		"root id substring":          {allocation.Filter{RootID: "a0001"}, []string{"1", "2"}},
		"emp code":                   {allocation.Filter{EmpCode: "rm"}, []string{"1", "3"}},
		"purpose and role are ANDed": {allocation.Filter{Purpose: "project", Role: "admin"}, []string{"1"}},
		"no match":                   {allocation.Filter{BMID: "BM"}, []string{}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ids(tc.filter.Apply(records)))
		})
	}
}

func TestFilter_IsZero(t *testing.T) {
	assert.True(t, allocation.Filter{}.IsZero())
	assert.False(t, allocation.Filter{Item: "x"}.IsZero())
}
