// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the interactive terminal front end for prism.

The Model is a Bubble Tea program that drives an orchestrator.Orchestrator.
It never mutates the conversation itself: submissions, mode switches and
clears go through the orchestrator, and the view is rebuilt from a
conversation snapshot whenever the Bridge reports a change.

# Layout

	+--------------------------------------------------------+
	| prism  [Chat] Generate  Edit  Analyze      thinking .. |  header
	|                                                        |
	|  conversation viewport                                 |
	|                                                        |
	| 1. [image] cat.png (1.2 MB)                            |  queued attachments
	| > message input                                        |
	| Ready            next: stream chat . model     ? help  |  status bar
	+--------------------------------------------------------+

# Credential grants

When a cycle asks the credential host for a key, the Bridge delivers a
KeyRequestMsg and the model opens a masked KeyPrompt overlay. Enter hands
the key back to the waiting cycle; Esc abandons the request, which settles
the cycle with an error.

# Slash commands

	/mode <chat|generate|edit|analyze>   switch mode (clears the conversation)
	/chat /gen /edit /analyze            mode shortcuts
	/think /search /fast                 toggle a chat flag
	/res <1K|2K|4K>                      set image resolution
	/attach <path>  /detach [n]          manage attachments
	/clear                               clear the conversation
	/key [key]  /forget                  set or forget the personal key
	/models  /plan                       show the model table or routing preview
	/help  /quit
*/
package chat
