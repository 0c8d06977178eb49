package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/opsdash/dashgate/internal/guard"
)

// routeInfo is the JSON shape for one route table entry.
type routeInfo struct {
	Path         string   `json:"path"`
	Privilege    string   `json:"privilege"`
	AllowedRoles []string `json:"allowed_roles,omitempty"`
	Upstream     string   `json:"upstream,omitempty"`
}

// RunRoutes prints the loaded route table with the role sets resolved at
// construction time. Useful for auditing which roles can reach which route
// before a deploy. Supports text and JSON output formats.
func RunRoutes(table *guard.Table, writer io.Writer, format string) error {
	infos := make([]routeInfo, 0, len(table.Routes())+1)
	for _, route := range table.Routes() {
		infos = append(infos, describeRoute(route))
	}
	catchAll := describeRoute(table.NotFound())
	catchAll.Path = catchAll.Path + " (catch-all)"
	infos = append(infos, catchAll)

	if format == "json" {
		if err := json.NewEncoder(writer).Encode(infos); err != nil {
			return fmt.Errorf("failed to encode routes: %w", err)
		}
		return nil
	}

	for _, info := range infos {
		fmt.Fprintf(writer, "%s\n", info.Path)
		fmt.Fprintf(writer, "  privilege: %s\n", info.Privilege)
		if len(info.AllowedRoles) > 0 {
			fmt.Fprintf(writer, "  allowed roles: %v\n", info.AllowedRoles)
		}
		if info.Upstream != "" {
			fmt.Fprintf(writer, "  upstream: %s\n", info.Upstream)
		}
	}
	return nil
}

func describeRoute(route *guard.Route) routeInfo {
	info := routeInfo{
		Path:      route.Path,
		Privilege: string(route.Privilege),
	}
	for _, role := range route.AllowedRoles() {
		info.AllowedRoles = append(info.AllowedRoles, role.String())
	}
	if route.Upstream != nil {
		info.Upstream = route.Upstream.String()
	}
	return info
}
