// Package tracker — инкрементальное обновление кэша игроков и матчей.
//
// Два цикла на независимых таймерах:
//   - полный (редкий): справочники OpenDota (герои, предметы, патчи),
//     затем профиль + win/loss + последние матчи каждого игрока;
//   - инкрементальный (частый): только последние матчи — ищем новые.
//
// Логика по игроку: сравниваем свежий match_id с сохранённым маркером
// last_match_id. Если появился новый матч и файла матча ещё нет —
// качаем детали (дубликаты схлопываются через singleflight и проверку
// существования файла). Маркер двигается после попытки скачивания,
// удачной или нет. Ошибка по одному игроку не трогает остальных:
// цикл дорабатывает частично и повторяется по следующему таймеру.
//
// Циклы могут накладываться друг на друга, это штатно: записи
// идемпотентны, матчи пишутся один раз.
package tracker
