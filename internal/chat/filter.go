package chat

import "github.com/library-chat/backend/pkg/config"

// Filter is a conjunction of inclusion constraints over indexed document
// fields. An empty slice means the field is unconstrained.
type Filter struct {
	Types     []string
	Authors   []string
	Libraries []string
}

// BuildFilter derives the retrieval filter from the request's media-type
// selections and the site policy. Pure function of its inputs.
//
// The type constraint never ends up empty: if the request disables every
// site-enabled media type, the full enabled set is used instead so the
// filter cannot select zero document types.
func BuildFilter(collection string, mediaTypes map[string]bool, site config.SiteConfig) Filter {
	var types []string
	for _, mt := range site.EnabledMediaTypes {
		if mediaTypes[mt] {
			types = append(types, mt)
		}
	}
	if len(types) == 0 {
		types = append(types, site.EnabledMediaTypes...)
	}

	filter := Filter{Types: types}

	if policy, ok := site.Collections[collection]; ok && len(policy.RestrictToAuthors) > 0 {
		filter.Authors = append(filter.Authors, policy.RestrictToAuthors...)
	}

	if len(site.IncludedLibraries) > 0 {
		filter.Libraries = append(filter.Libraries, site.IncludedLibraries...)
	}

	return filter
}
