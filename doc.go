// Package pdfassist is a question-answering assistant over PDF documents.
//
// PDFs are fetched from URLs, split into chunks, embedded and stored in a
// vector database. Questions go to a tool-calling chat model that searches
// that knowledge base. When the model emits a malformed tool call, the
// attempted search is run locally and the model is asked again with the
// retrieved documents inlined.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/kadirpekel/pdfassist/cmd/pdfassist@latest
//
// Write a configuration:
//
//	llm:
//	  provider: groq
//	  api_key: ${GROQ_API_KEY}
//	embedder:
//	  provider: gemini
//	  api_key: ${GOOGLE_API_KEY}
//	vector_db:
//	  type: pgvector
//	database:
//	  url: ${DATABASE_URL:-postgresql+psycopg://ai:ai@localhost:5532/ai}
//
// Then index a document and ask about it:
//
//	pdfassist index https://example.com/recipes.pdf
//	pdfassist ask "How do I make pad thai?"
//	pdfassist chat
//	pdfassist serve
//
// # Packages
//
//   - pkg/assistant: query orchestration, tool-call recovery and indexing
//   - pkg/agent: the tool-calling chat agent
//   - pkg/knowledge: URL-backed knowledge base
//   - pkg/vector, pkg/embedder, pkg/llm: backends
//   - pkg/server, pkg/mcpserver, pkg/tui: user-facing surfaces
package pdfassist
