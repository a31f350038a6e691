package dirauth

// mergeProfile builds an identity view from the live group set and the
// profile document.
func mergeProfile(profile *Profile, groups []string) IdentityView {
	view := IdentityView{
		Username:  profile.Username,
		Email:     profile.Email,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Groups:    groupsOrEmpty(groups),
		LastLogin: profile.LastLogin,
		IsActive:  profile.IsActive,
	}
	if !profile.CreatedAt.IsZero() {
		created := profile.CreatedAt
		view.CreatedAt = &created
	}
	return view
}

// mergeEntry falls back to the registration-time attributes held by the
// directory entry when no profile document exists.
func mergeEntry(entry *DirectoryEntry, groups []string) IdentityView {
	return IdentityView{
		Username:  entry.Username,
		Email:     entry.Email,
		FirstName: entry.FirstName,
		LastName:  entry.LastName,
		Groups:    groupsOrEmpty(groups),
		IsActive:  true,
	}
}

// missingAttributes reports whether the profile store left any
// registration-time attribute blank.
func missingAttributes(view *IdentityView) bool {
	return view.Email == "" || view.FirstName == "" || view.LastName == ""
}

// fillFromEntry copies directory attributes into the blank fields of view.
// Fields the profile store holds are never overwritten.
func fillFromEntry(view *IdentityView, entry *DirectoryEntry) {
	if entry == nil {
		return
	}
	if view.Email == "" {
		view.Email = entry.Email
	}
	if view.FirstName == "" {
		view.FirstName = entry.FirstName
	}
	if view.LastName == "" {
		view.LastName = entry.LastName
	}
}

func mergeProfileView(profile *Profile, groups []string) ProfileView {
	return ProfileView{
		IdentityView: mergeProfile(profile, groups),
		LoginCount:   profile.LoginCount,
		DaysActive:   profile.DaysActive,
		LastActivity: profile.LastActivity,
	}
}

func groupsOrEmpty(groups []string) []string {
	if groups == nil {
		return []string{}
	}
	return groups
}
