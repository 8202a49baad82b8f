// Package content is the small CMS behind the public pages. Sections are
// addressed by slug, kept in memory and seeded from a YAML file or from the
// built-in defaults at startup.
package content
