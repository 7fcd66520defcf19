package models

const (
	ContextSeparator = "\n---\n"
)

var (
	AnswerPromptTemplate = `You are a helpful AI assistant that answers questions based on the provided context.

CONTEXT:
%s

USER QUERY:
%s

Please answer the query based only on the provided context. If the context doesn't contain relevant information, state that you don't have enough information. Include citations to specific documents when possible.

ANSWER:
`

	ContextChunkTemplate = `[Document %d] %s
Source: %s

%s
`
)
