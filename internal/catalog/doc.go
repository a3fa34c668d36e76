// Package catalog binds the capability set to the live service
// adapters. It owns the planner-visible names, parameter schemas, and
// action descriptions, plus the fallback that derives repository names
// from previously fetched mail when a step omits repo_name.
package catalog
