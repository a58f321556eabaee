package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/toolhub/agenttools/internal/core"
)

// Definition is one tool and the group that has to be enabled to expose it.
type Definition struct {
	Group core.ToolGroup
	Tool  mcp.Tool
}

// ToolDefinitions lists every tool the server knows, in catalogue order.
func ToolDefinitions() []Definition {
	return []Definition{
		{core.GroupWorkflow, mcp.NewTool("list_issues",
			mcp.WithDescription("List open issues in the project tracker with their labels and creation time."),
		)},
		{core.GroupWorkflow, mcp.NewTool("start_issue",
			mcp.WithDescription("Reset the working copy to the base branch and create and push a branch for the issue. Discards local changes."),
			mcp.WithNumber("issue_number", mcp.Required(), mcp.Description("Tracker issue number, a positive integer")),
		)},
		{core.GroupWorkflow, mcp.NewTool("change_summary",
			mcp.WithDescription("Show the short status and diff stat of the working copy."),
		)},
		{core.GroupWorkflow, mcp.NewTool("commit_and_push",
			mcp.WithDescription("Stage everything, commit with the message, push the current branch and watch CI checks when a pull request exists."),
			mcp.WithString("commit_message", mcp.Required(), mcp.Description("Commit message")),
		)},
		{core.GroupWorkflow, mcp.NewTool("complete_issue",
			mcp.WithDescription("Open a pull request for the current issue branch if needed, wait for checks, merge it and return to the base branch."),
		)},
		{core.GroupJira, mcp.NewTool("jira__get_base_issue",
			mcp.WithDescription("Return the title and description of the configured Jira base issue."),
		)},
		{core.GroupJira, mcp.NewTool("jira__create_issue_from_base",
			mcp.WithDescription("Create a Jira issue in the base issue's project and type, copying the fields Jira requires."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Summary of the new issue")),
			mcp.WithString("description", mcp.Required(), mcp.Description("Description of the new issue")),
		)},
		{core.GroupJira, mcp.NewTool("jira__get_epic_stories",
			mcp.WithDescription("List the stories linked to a Jira epic."),
			mcp.WithString("epic_key", mcp.Required(), mcp.Description("Epic issue key, for example PROJ-10")),
		)},
		{core.GroupJira, mcp.NewTool("jira__get_story_content",
			mcp.WithDescription("Return a Jira story with its description, status and comments."),
			mcp.WithString("story_key", mcp.Required(), mcp.Description("Story issue key, for example PROJ-12")),
		)},
		{core.GroupBrowse, mcp.NewTool("browse__search",
			mcp.WithDescription("Search the web and return the result page as plain text."),
			mcp.WithString("term", mcp.Required(), mcp.Description("Search terms")),
		)},
		{core.GroupBrowse, mcp.NewTool("browse__fetch",
			mcp.WithDescription("Fetch an http or https page and return it as plain text."),
			mcp.WithString("url", mcp.Required(), mcp.Description("Absolute http(s) URL")),
		)},
		{core.GroupFormatter, mcp.NewTool("formatter__black",
			mcp.WithDescription("Format the project's Python sources with black."),
		)},
		{core.GroupDevelopment, mcp.NewTool("development__test",
			mcp.WithDescription("Prepare the project virtualenv and run its pytest suite."),
		)},
		{core.GroupDevelopment, mcp.NewTool("development__build",
			mcp.WithDescription("Prepare the project virtualenv and install its requirements."),
		)},
	}
}
