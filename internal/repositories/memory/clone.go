package memory

import (
	domain "github.com/pimgrid/api/internal/domain"
)

// clone deep-copies the whole state so a transaction rollback can restore it.
func (s state) clone() state {
	out := newState()
	for id, p := range s.products {
		out.products[id] = cloneProduct(p)
	}
	for id, c := range s.catalogs {
		out.catalogs[id] = c
	}
	for id, c := range s.categories {
		out.categories[id] = cloneCategory(c)
	}
	for id, c := range s.channels {
		out.channels[id] = cloneChannel(c)
	}
	for id, f := range s.families {
		out.families[id] = f
	}
	for id, t := range s.templates {
		out.templates[id] = t
	}
	for id, a := range s.attributes {
		out.attributes[id] = cloneAttribute(a)
	}
	for id, v := range s.attributeValues {
		out.attributeValues[id] = cloneAttributeValue(v)
	}
	for id, a := range s.associations {
		out.associations[id] = a
	}
	for id, e := range s.edges {
		out.edges[id] = e
	}
	for k, l := range s.categoryLinks {
		out.categoryLinks[k] = l
	}
	for k, l := range s.channelLinks {
		out.channelLinks[k] = l
	}
	for k, l := range s.assetLinks {
		out.assetLinks[k] = l
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneProduct(p domain.Product) domain.Product {
	p.TeamIDs = cloneStrings(p.TeamIDs)
	return p
}

func cloneCategory(c domain.Category) domain.Category {
	c.CatalogIDs = cloneStrings(c.CatalogIDs)
	c.ChannelIDs = cloneStrings(c.ChannelIDs)
	return c
}

func cloneChannel(c domain.Channel) domain.Channel {
	c.Locales = cloneStrings(c.Locales)
	return c
}

func cloneAttribute(a domain.Attribute) domain.Attribute {
	if a.LocaleNames != nil {
		names := make(map[string]string, len(a.LocaleNames))
		for k, v := range a.LocaleNames {
			names[k] = v
		}
		a.LocaleNames = names
	}
	return a
}

func cloneAttributeValue(v domain.AttributeValue) domain.AttributeValue {
	v.TypeValue = cloneStrings(v.TypeValue)
	v.TeamIDs = cloneStrings(v.TeamIDs)
	if v.Data != nil {
		data := make(map[string]any, len(v.Data))
		for k, val := range v.Data {
			data[k] = val
		}
		v.Data = data
	}
	if v.LocaleValues != nil {
		locales := make(map[string]domain.LocalizedValue, len(v.LocaleValues))
		for k, lv := range v.LocaleValues {
			lv.TypeValue = cloneStrings(lv.TypeValue)
			locales[k] = lv
		}
		v.LocaleValues = locales
	}
	return v
}
