package postgres

import (
	"github.com/huandu/go-sqlbuilder"
)

func insertRepositoryQuery(name string) (string, []any) {
	s := sqlbuilder.InsertInto("repositories").
		Cols("name").
		Values(name)
	s.SQL("on conflict (name) do nothing")

	return s.BuildWithFlavor(sqlbuilder.PostgreSQL)
}

func repositoryExistsQuery(name string) (string, []any) {
	s := sqlbuilder.Select("1").From("repositories")
	s.Where(s.Equal("name", name))

	return s.BuildWithFlavor(sqlbuilder.PostgreSQL)
}

func insertUploadQuery(repository string, id string) (string, []any) {
	s := sqlbuilder.InsertInto("uploads").
		Cols("repository", "id", "data").
		Values(repository, id, []byte{})

	return s.BuildWithFlavor(sqlbuilder.PostgreSQL)
}

func uploadLengthQuery(repository string, id string) (string, []any) {
	s := sqlbuilder.Select("octet_length(data)").From("uploads")
	s.Where(
		s.Equal("repository", repository),
		s.Equal("id", id),
	)

	return s.BuildWithFlavor(sqlbuilder.PostgreSQL)
}

func lockUploadQuery(repository string, id string) (string, []any) {
	s := sqlbuilder.Select("data").From("uploads")
	s.Where(
		s.Equal("repository", repository),
		s.Equal("id", id),
	)
	s.ForUpdate()

	return s.BuildWithFlavor(sqlbuilder.PostgreSQL)
}

// appendUploadQuery only matches while the stored length equals offset, so
// the offset check and the append are one statement.
func appendUploadQuery(repository string, id string, offset int64, data []byte) (string, []any) {
	s := sqlbuilder.Update("uploads")
	s.Set("data = data || " + s.Var(data))
	s.Where(
		s.Equal("repository", repository),
		s.Equal("id", id),
		s.Equal("octet_length(data)", offset),
	)
	s.SQL("returning octet_length(data)")

	return s.BuildWithFlavor(sqlbuilder.PostgreSQL)
}

func deleteUploadQuery(repository string, id string) (string, []any) {
	s := sqlbuilder.DeleteFrom("uploads")
	s.Where(
		s.Equal("repository", repository),
		s.Equal("id", id),
	)
	s.SQL("returning octet_length(data)")

	return s.BuildWithFlavor(sqlbuilder.PostgreSQL)
}

// upsertBlobQuery replaces the content of an existing digest.
func upsertBlobQuery(repository string, digest string, data []byte) (string, []any) {
	s := sqlbuilder.InsertInto("blobs").
		Cols("repository", "digest", "data").
		Values(repository, digest, data)
	s.SQL("on conflict (repository, digest) do update set data = excluded.data")

	return s.BuildWithFlavor(sqlbuilder.PostgreSQL)
}

func blobLengthQuery(repository string, digest string) (string, []any) {
	s := sqlbuilder.Select("octet_length(data)").From("blobs")
	s.Where(
		s.Equal("repository", repository),
		s.Equal("digest", digest),
	)

	return s.BuildWithFlavor(sqlbuilder.PostgreSQL)
}
