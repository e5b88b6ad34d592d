package schema

import (
	"fmt"
	"strings"

	"so2pg/internal/dataset"
)

// TableFor derives the table definition of a dataset. Every column is
// nullable except "id", which becomes the primary key.
func TableFor(d dataset.Descriptor) TableDef {
	fields := d.Fields()
	cols := make([]ColumnDef, 0, len(fields))
	for _, f := range fields {
		c := ColumnDef{Name: f.Column, SQLType: f.SQLType, Nullable: true}
		if f.Column == "id" {
			c.PrimaryKey = true
			c.Nullable = false
		}
		cols = append(cols, c)
	}
	return TableDef{FQN: d.Table(), Columns: cols}
}

// Basics returns one table per registered dataset, ordered by dataset name.
func Basics(reg *dataset.Registry) []TableDef {
	ds := reg.Descriptors()
	out := make([]TableDef, 0, len(ds))
	for _, d := range ds {
		out = append(out, TableFor(d))
	}
	return out
}

// fk links from.column to to.id. An empty column defaults to the singular of
// to plus "_id" (users → user_id).
func fk(from, to, column string) ForeignKey {
	if column == "" {
		column = strings.TrimSuffix(to, "s") + "_id"
	}
	return ForeignKey{Table: from, Column: column, RefTable: to, RefColumn: "id"}
}

// Relations are the foreign keys between dataset tables. Some of them do not
// hold in every dump (votes → posts in particular); Ensurer logs and skips
// those.
func Relations() []ForeignKey {
	return []ForeignKey{
		fk("badges", "users", ""),
		fk("comments", "posts", ""),
		fk("comments", "users", ""),
		fk("posts", "posts", "parent_id"),
		fk("posts", "posts", "accepted_answer_id"),
		fk("post_links", "posts", ""),
		fk("post_links", "posts", "related_post_id"),
		fk("posts", "users", "owner_user_id"),
		fk("posts", "users", "last_editor_user_id"),
		fk("post_history", "posts", ""),
		fk("post_history", "users", ""),
		fk("votes", "posts", ""),
		fk("votes", "users", ""),
	}
}

// OptionalRelations link dataset tables to the lookup tables.
func OptionalRelations() []ForeignKey {
	return []ForeignKey{
		fk("posts", "post_types", ""),
		fk("post_history", "post_history_types", ""),
		fk("post_history", "close_reasons", ""),
		fk("votes", "vote_types", ""),
		fk("post_links", "post_link_types", "link_type_id"),
	}
}

func lookup(table, labelColumn string, width int, rows ...SeedRow) Lookup {
	return Lookup{
		Table: TableDef{FQN: table, Columns: []ColumnDef{
			{Name: "id", SQLType: "integer", PrimaryKey: true},
			{Name: labelColumn, SQLType: fmt.Sprintf("varchar(%d)", width), Nullable: true},
		}},
		LabelColumn: labelColumn,
		Seed:        rows,
	}
}

// Lookups are the optional id → label tables and their known values.
func Lookups() []Lookup {
	return []Lookup{
		lookup("post_types", "type_name", 24,
			SeedRow{1, "Question"},
			SeedRow{2, "Answer"},
			SeedRow{3, "Wiki"},
			SeedRow{4, "TagWikiExcerpt"},
			SeedRow{5, "TagWiki"},
			SeedRow{6, "ModeratorNomination"},
			SeedRow{7, "WikiPlaceholder"},
			SeedRow{8, "PrivilegeWiki"},
		),
		lookup("post_history_types", "name", 50,
			SeedRow{1, "Initial Title"},
			SeedRow{2, "Initial Body"},
			SeedRow{3, "Initial Tags"},
			SeedRow{4, "Edit Title"},
			SeedRow{5, "Edit Body"},
			SeedRow{6, "Edit Tags"},
			SeedRow{7, "Rollback Title"},
			SeedRow{8, "Rollback Body"},
			SeedRow{9, "Rollback Tags"},
			SeedRow{10, "Post Closed"},
			SeedRow{11, "Post Reopened"},
			SeedRow{12, "Post Deleted"},
			SeedRow{13, "Post Undeleted"},
			SeedRow{14, "Post Locked"},
			SeedRow{15, "Post Unlocked"},
			SeedRow{16, "Community Owned"},
			SeedRow{17, "Post Migrated"},
			SeedRow{18, "Question Merged"},
			SeedRow{19, "Question Protected"},
			SeedRow{20, "Question Unprotected"},
			SeedRow{22, "Question Unmerged"},
			SeedRow{24, "Suggested Edit Applied"},
			SeedRow{25, "Post Tweeted"},
			SeedRow{31, "Discussion moved to chat"},
			SeedRow{33, "Post Notice Added"},
			SeedRow{34, "Post Notice Removed"},
			SeedRow{35, "Post Migrated Away"},
			SeedRow{36, "Post Migrated Here"},
			SeedRow{37, "Post Merge Source"},
			SeedRow{38, "Post Merge Destination"},
		),
		lookup("close_reasons", "name", 50,
			SeedRow{1, "Exact duplicate"},
			SeedRow{2, "off-topic"},
			SeedRow{3, "subjective"},
			SeedRow{4, "not a real question"},
			SeedRow{7, "too localized"},
			SeedRow{10, "General reference"},
			SeedRow{20, "Noise or pointless"},
		),
		lookup("vote_types", "name", 50,
			SeedRow{1, "AcceptedByOriginator"},
			SeedRow{2, "UpMod"},
			SeedRow{3, "DownMod"},
			SeedRow{4, "Offensive"},
			SeedRow{5, "Favorite"},
			SeedRow{6, "Close"},
			SeedRow{7, "Reopen"},
			SeedRow{8, "BountyStart"},
			SeedRow{9, "BountyClose"},
			SeedRow{10, "Deletion"},
			SeedRow{11, "Undeletion"},
			SeedRow{12, "Spam"},
			SeedRow{15, "ModeratorReview"},
			SeedRow{16, "ApproveEditSuggestion"},
		),
		lookup("post_link_types", "name", 50,
			SeedRow{1, "Linked"},
			SeedRow{3, "Duplicate"},
		),
	}
}
