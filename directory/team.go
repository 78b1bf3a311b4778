package directory

import "context"

// BuildTeam returns everyone whose reports-to chain reaches managerEmpCode,
// nearest first, each empCode once. A visited set guarantees termination on
// cyclic data; the manager never appears in its own team.
func BuildTeam(users []User, managerEmpCode string) []User {
	if managerEmpCode == "" || len(users) == 0 {
		return []User{}
	}

	// manager -> direct reports, preserving directory order
	reports := make(map[string][]int, len(users))
	for i, u := range users {
		for _, m := range u.ReportTo {
			reports[m] = append(reports[m], i)
		}
	}

	seen := map[string]bool{managerEmpCode: true}
	team := []User{}
	queue := []string{managerEmpCode}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, i := range reports[current] {
			u := users[i]
			if seen[u.EmpCode] {
				continue
			}
			seen[u.EmpCode] = true
			team = append(team, u)
			queue = append(queue, u.EmpCode)
		}
	}
	return team
}

// TeamOf loads the directory and builds managerEmpCode's team.
func TeamOf(ctx context.Context, store Store, managerEmpCode string) ([]User, error) {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return BuildTeam(users, managerEmpCode), nil
}

// InTeam reports whether empCode is in managerEmpCode's team.
func InTeam(users []User, managerEmpCode, empCode string) bool {
	for _, u := range BuildTeam(users, managerEmpCode) {
		if u.EmpCode == empCode {
			return true
		}
	}
	return false
}
