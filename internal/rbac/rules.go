package rbac

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	"learner": {
		"session:start",
		"session:play",
		"attempt:view-own",
		"learner:change_password",
	},
	"instructor": {
		"session:*", // preview quizzes as a learner would
		"attempt:view-own",
		"attempt:view-all",
		"quiz:create",
		"learners:list",
		"learners:bulk_upsert",
		"learner:change_password",
	},
	"admin": {
		"*",
	},
}
