// Package agent_tools exposes the query agent over the Model Context
// Protocol. It registers an ask tool that runs the full planning loop
// plus one tool per registered capability for direct adapter access.
package agent_tools
