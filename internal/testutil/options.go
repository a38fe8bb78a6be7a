package testutil

import "github.com/zjrosen/rankreg/internal/handle"

// serviceData holds everything needed to export one test service.
type serviceData struct {
	name        string
	endpoint    string
	rank        int
	version     string
	region      string
	tags        []string
	attrs       handle.Attributes
	unavailable bool
}

// defaultService returns a serviceData with sensible defaults.
func defaultService(name string) serviceData {
	return serviceData{
		name:     name,
		endpoint: "tcp://" + name + ":1", // Default endpoint derives from the name
	}
}

func (s serviceData) attributes() handle.Attributes {
	attrs := handle.Attributes{
		"name":            s.name,
		"endpoint":        s.endpoint,
		handle.RankingKey: s.rank,
	}
	if s.version != "" {
		attrs["version"] = s.version
	}
	if s.region != "" {
		attrs["region"] = s.region
	}
	if len(s.tags) > 0 {
		attrs["tags"] = s.tags
	}
	for k, v := range s.attrs {
		attrs[k] = v
	}
	return attrs
}

// ServiceOption configures a service during builder setup.
type ServiceOption func(*serviceData)

// Rank sets the service.ranking attribute.
func Rank(n int) ServiceOption {
	return func(s *serviceData) { s.rank = n }
}

// Endpoint sets the exported instance.
func Endpoint(e string) ServiceOption {
	return func(s *serviceData) { s.endpoint = e }
}

// Version sets the version attribute.
func Version(v string) ServiceOption {
	return func(s *serviceData) { s.version = v }
}

// Region sets the region attribute.
func Region(r string) ServiceOption {
	return func(s *serviceData) { s.region = r }
}

// Tags sets the tags attribute.
func Tags(tags ...string) ServiceOption {
	return func(s *serviceData) { s.tags = tags }
}

// Attr sets an arbitrary attribute. Attr wins over the named options.
func Attr(key string, value any) ServiceOption {
	return func(s *serviceData) {
		if s.attrs == nil {
			s.attrs = handle.Attributes{}
		}
		s.attrs[key] = value
	}
}

// Unavailable exports the handle without an instance.
func Unavailable() ServiceOption {
	return func(s *serviceData) { s.unavailable = true }
}
