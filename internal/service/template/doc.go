// Package template manages reusable campaign content templates.
//
// Templates are looked up by category (mirroring campaign types); the
// automation scheduler binds the active template for its trigger's
// category when synthesizing campaigns. Template bodies are validated
// with a Liquid engine at save time so malformed syntax is rejected
// before a campaign ever references the template.
package template
