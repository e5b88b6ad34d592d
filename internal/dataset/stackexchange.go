package dataset

import "fmt"

const (
	sqlInt       = "integer"
	sqlTimestamp = "timestamp"
	sqlText      = "text"
	sqlBool      = "boolean"
	sqlUUID      = "uuid"
)

func varchar(n int) string { return fmt.Sprintf("varchar(%d)", n) }

// StackExchange returns the descriptors for the files of a StackExchange data
// dump (Badges.xml, Comments.xml, ...).
func StackExchange() []Descriptor {
	return []Descriptor{
		NewDescriptor("Badges", "badges",
			Field("id", sqlInt),
			Field("user_id", sqlInt),
			Field("name", varchar(50)),
			Field("date", sqlTimestamp),
			Field("class", sqlInt),
			Field("tag_based", sqlBool),
		),
		NewDescriptor("Comments", "comments",
			Field("id", sqlInt),
			Field("post_id", sqlInt),
			Field("score", sqlInt),
			Field("text", sqlText),
			Field("creation_date", sqlTimestamp),
			Field("user_id", sqlInt),
			Field("user_display_name", varchar(30)),
		),
		NewDescriptor("Posts", "posts",
			Field("id", sqlInt),
			Field("post_type_id", sqlInt),
			Field("parent_id", sqlInt),
			Field("accepted_answer_id", sqlInt),
			Field("creation_date", sqlTimestamp),
			Field("score", sqlInt),
			Field("view_count", sqlInt),
			Field("body", sqlText),
			Field("owner_user_id", sqlInt),
			Field("last_editor_user_id", sqlInt),
			Field("last_editor_display_name", varchar(40)),
			Field("last_edit_date", sqlTimestamp),
			Field("last_activity_date", sqlTimestamp),
			Field("community_owned_date", sqlTimestamp),
			Field("closed_date", sqlTimestamp),
			Field("title", sqlText),
			Field("tags", varchar(150)),
			Field("answer_count", sqlInt),
			Field("comment_count", sqlInt),
			Field("favorite_count", sqlInt),
			Field("owner_display_name", sqlText),
		),
		NewDescriptor("PostHistory", "post_history",
			Field("id", sqlInt),
			Field("post_history_type_id", sqlInt),
			Field("post_id", sqlInt),
			Field("revision_guid", sqlUUID),
			Field("creation_date", sqlTimestamp),
			Field("user_id", sqlInt),
			Field("user_display_name", varchar(40)),
			Field("comment", sqlText),
			Field("text", sqlText),
			Field("close_reason_id", sqlInt),
		),
		NewDescriptor("Users", "users",
			Field("id", sqlInt),
			Field("reputation", sqlInt),
			Field("creation_date", sqlTimestamp),
			Field("display_name", sqlText),
			Field("email_hash", varchar(32)),
			Field("last_access_date", sqlTimestamp),
			Field("website_url", varchar(300)),
			Field("location", varchar(200)),
			Field("age", sqlInt),
			Field("about_me", sqlText),
			Field("views", sqlInt),
			Field("up_votes", sqlInt),
			Field("down_votes", sqlInt),
			Field("account_id", sqlInt),
		),
		NewDescriptor("Votes", "votes",
			Field("id", sqlInt),
			Field("post_id", sqlInt),
			Field("vote_type_id", sqlInt),
			Field("creation_date", sqlTimestamp),
			Field("user_id", sqlInt),
			Field("bounty_amount", sqlInt),
		),
		NewDescriptor("PostLinks", "post_links",
			Field("id", sqlInt),
			Field("creation_date", sqlTimestamp),
			Field("post_id", sqlInt),
			Field("related_post_id", sqlInt),
			Field("link_type_id", sqlInt),
		),
		NewDescriptor("Tags", "tags",
			Field("id", sqlInt),
			Field("tag_name", varchar(150)),
			Field("count", sqlInt),
			Field("excerpt_post_id", sqlInt),
			Field("wiki_post_id", sqlInt),
		),
	}
}

// Default returns a registry holding the StackExchange descriptors.
// It panics if they fail validation, which the package tests rule out.
func Default() *Registry {
	r, err := NewRegistry(StackExchange()...)
	if err != nil {
		panic(err)
	}
	return r
}
