// Package knowdex is the embedded client for the knowledge pipeline: it
// wires the ingestion, search, and answer services in-process, without the
// HTTP API in between.
//
// Minimal usage with the in-memory store:
//
//	client, err := knowdex.New(ctx,
//		knowdex.WithMemoryStore(1536),
//		knowdex.WithOpenAI(os.Getenv("OPENAI_API_KEY"), "text-embedding-3-small", "gpt-4o-mini"),
//	)
//	if err != nil { ... }
//	defer client.Close(ctx)
//
//	_, err = client.IngestDocument(ctx, doc, false)
//	answer, err := client.Ask(ctx, "What changed in revenue recognition?")
package knowdex
