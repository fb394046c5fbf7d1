package services

import "strings"

// Category is the subfolder grouping a template's copies are filed under.
type Category int

const (
	CategoryFlows Category = iota
	CategoryWalkerAgents
)

const walkerAgentKeyword = "Walker Agent"

// CategoryFor routes a template by name. The mapping depends on the name only.
func CategoryFor(templateName string) Category {
	if strings.Contains(templateName, walkerAgentKeyword) {
		return CategoryWalkerAgents
	}
	return CategoryFlows
}

// FolderName is the subfolder name used for the category.
func (c Category) FolderName() string {
	switch c {
	case CategoryWalkerAgents:
		return WalkerAgentsFolderName
	case CategoryFlows:
		return FlowsFolderName
	default:
		return FlowsFolderName
	}
}
